// Package steamcmd drives the SteamCMD command line tool that downloads
// dedicated server binaries and workshop mods.
package steamcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	"arkmanager/internal/domain"

	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("steamcmd executable not found")

const (
	successToken     = "success"
	downloadingToken = "downloading,"
)

// Executor runs a program and streams its stdout line by line.
type Executor interface {
	Run(ctx context.Context, name string, args []string, onLine func(string)) (exitCode int, err error)
}

// Login selects anonymous or authenticated access.
type Login struct {
	Username string
	Password string
}

func (l Login) args() []string {
	if l.Username == "" {
		return []string{"+login", "anonymous"}
	}
	return []string{"+login", l.Username, l.Password}
}

// AppRequest installs or updates a dedicated server app into Dir.
type AppRequest struct {
	Dir            string
	AppID          string
	Branch         string
	BranchPassword string
	Validate       bool
}

// WorkshopRequest downloads one workshop item. The content lands in
// Dir/steamapps/workshop/content/<AppID>/<ItemID>.
type WorkshopRequest struct {
	Dir    string
	AppID  string
	ItemID string
}

func AppUpdateArgs(login Login, req AppRequest) []string {
	args := []string{"+force_install_dir", req.Dir}
	args = append(args, login.args()...)
	args = append(args, "+app_update", req.AppID)
	if req.Branch != "" {
		args = append(args, "-beta", req.Branch)
		if req.BranchPassword != "" {
			args = append(args, "-betapassword", req.BranchPassword)
		}
	}
	if req.Validate {
		args = append(args, "validate")
	}
	return append(args, "+quit")
}

func WorkshopArgs(login Login, req WorkshopRequest) []string {
	args := []string{"+force_install_dir", req.Dir}
	args = append(args, login.args()...)
	args = append(args, "+workshop_download_item", req.AppID, req.ItemID)
	return append(args, "+quit")
}

// Result is what one SteamCMD invocation reported.
type Result struct {
	ExitCode    int
	SuccessSeen bool
	Downloading bool
	Lines       []string
}

type Client struct {
	Path            string
	Login           Login
	CaptureOutput   bool
	AcceptExitCodes []int

	exec Executor
}

func NewClient(path string, login Login, captureOutput bool) *Client {
	return &Client{
		Path:            path,
		Login:           login,
		CaptureOutput:   captureOutput,
		AcceptExitCodes: []int{0},
		exec:            osExecutor{},
	}
}

// WithExecutor replaces how the tool is run. Used by tests.
func (c *Client) WithExecutor(e Executor) *Client {
	c.exec = e
	return c
}

// Succeeded applies the success rule: an accepted exit code, plus the success
// token when output is captured.
func (c *Client) Succeeded(r Result, err error) bool {
	if err != nil {
		return false
	}
	if !slices.Contains(c.AcceptExitCodes, r.ExitCode) {
		return false
	}
	return !c.CaptureOutput || r.SuccessSeen
}

func (c *Client) UpdateApp(ctx context.Context, req AppRequest, log zerolog.Logger) (Result, error) {
	return c.run(ctx, AppUpdateArgs(c.Login, req), log)
}

func (c *Client) UpdateBranch(ctx context.Context, dir string, key domain.BranchKey, validate bool, log zerolog.Logger) (Result, error) {
	return c.UpdateApp(ctx, AppRequest{
		Dir:            dir,
		AppID:          key.AppID,
		Branch:         key.Branch,
		BranchPassword: key.Password,
		Validate:       validate,
	}, log)
}

func (c *Client) DownloadWorkshopItem(ctx context.Context, req WorkshopRequest, log zerolog.Logger) (Result, error) {
	return c.run(ctx, WorkshopArgs(c.Login, req), log)
}

func (c *Client) run(ctx context.Context, args []string, log zerolog.Logger) (Result, error) {
	if _, err := os.Stat(c.Path); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, c.Path)
	}

	log.Debug().Strs("args", redact(args, c.Login.Password)).Msg("Running steamcmd")

	var res Result
	onLine := func(line string) {
		if !c.CaptureOutput {
			return
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, successToken) {
			res.SuccessSeen = true
		}
		if strings.Contains(lower, downloadingToken) {
			res.Downloading = true
		}
		res.Lines = append(res.Lines, line)
		log.Debug().Str("steamcmd", line).Send()
	}

	code, err := c.exec.Run(ctx, c.Path, args, onLine)
	res.ExitCode = code
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return res, fmt.Errorf("steamcmd failed: %w", err)
	}

	log.Info().Int("exit_code", code).Bool("success_token", res.SuccessSeen).Msg("steamcmd finished")
	return res, nil
}

func redact(args []string, secret string) []string {
	if secret == "" {
		return args
	}
	out := slices.Clone(args)
	for i, a := range out {
		if a == secret {
			out[i] = "********"
		}
	}
	return out
}
