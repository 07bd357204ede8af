package rcon

import (
	"context"
	"time"

	gorcon "github.com/gorcon/rcon"
)

// Conn is one open console connection.
type Conn interface {
	Execute(command string) (string, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, address, password string) (Conn, error)
}

// NetDialer opens Source RCON connections over TCP.
type NetDialer struct {
	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

func (d NetDialer) Dial(ctx context.Context, address, password string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts []gorcon.Option
	if d.DialTimeout > 0 {
		opts = append(opts, gorcon.SetDialTimeout(d.DialTimeout))
	}
	if d.CommandTimeout > 0 {
		opts = append(opts, gorcon.SetDeadline(d.CommandTimeout))
	}

	conn, err := gorcon.Dial(address, password, opts...)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
