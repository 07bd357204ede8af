package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func (c *Client) ListProfiles(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	err := c.get(ctx, "/profiles", &profiles)
	return profiles, err
}

func (c *Client) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	if err := c.get(ctx, "/profiles/"+url.PathEscape(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProfile resolves an id or a case-insensitive profile name.
func (c *Client) FindProfile(ctx context.Context, ref string) (*Profile, error) {
	profiles, err := c.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].ID == ref || strings.EqualFold(profiles[i].Name, ref) {
			return &profiles[i], nil
		}
	}
	return nil, &APIError{StatusCode: http.StatusNotFound, Message: fmt.Sprintf("profile %q not found", ref)}
}

func (c *Client) CreateProfile(ctx context.Context, p Profile) (*Profile, error) {
	var out Profile
	if err := c.post(ctx, "/profiles", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, p Profile) (*Profile, error) {
	var out Profile
	if err := c.put(ctx, "/profiles/"+url.PathEscape(p.ID), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	return c.delete(ctx, "/profiles/"+url.PathEscape(id))
}

func (c *Client) GetStatus(ctx context.Context, id string) (*Status, error) {
	var s Status
	if err := c.get(ctx, "/profiles/"+url.PathEscape(id)+"/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) GetPlayers(ctx context.Context, id string) ([]Player, error) {
	var players []Player
	err := c.get(ctx, "/profiles/"+url.PathEscape(id)+"/players", &players)
	return players, err
}

// Rcon runs a console command on the profile's server and returns its output.
func (c *Client) Rcon(ctx context.Context, id, command string) ([]string, error) {
	var out struct {
		Lines []string `json:"lines"`
	}
	err := c.post(ctx, "/profiles/"+url.PathEscape(id)+"/rcon", map[string]string{"command": command}, &out)
	return out.Lines, err
}

func (c *Client) ListBackups(ctx context.Context, id string) ([]BackupInfo, error) {
	var backups []BackupInfo
	err := c.get(ctx, "/profiles/"+url.PathEscape(id)+"/backups", &backups)
	return backups, err
}

func (c *Client) RestoreBackup(ctx context.Context, id, name string) error {
	return c.post(ctx, "/profiles/"+url.PathEscape(id)+"/backups/"+url.PathEscape(name)+"/restore", nil, nil)
}

func (c *Client) DeleteBackup(ctx context.Context, id, name string) error {
	return c.delete(ctx, "/profiles/"+url.PathEscape(id)+"/backups/"+url.PathEscape(name))
}

func (c *Client) ListBranches(ctx context.Context) ([]Branch, error) {
	var branches []Branch
	err := c.get(ctx, "/branches", &branches)
	return branches, err
}
