package strategy

import (
	"os/exec"

	"arkmanager/internal/domain"
)

type ServerRunner interface {
	BuildCommand(s domain.ProfileSnapshot) (*exec.Cmd, error)
}
