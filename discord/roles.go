package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/noxrp/stream-notifier/reconcile"
)

// RoleCacheTTL is how long a role lookup is trusted.
const RoleCacheTTL = 60 * time.Second

// ErrRoleNotFound is returned by Grant when the live role is not in the guild.
var ErrRoleNotFound = errors.New("discord: live role not found in guild")

// RoleManager grants and revokes one guild role.
type RoleManager struct {
	s       Session
	guildID string
	roleID  string
	now     func() time.Time
	logger  *slog.Logger

	mu        sync.Mutex
	roleFound bool
	fetchedAt time.Time
}

var _ reconcile.RoleManager = (*RoleManager)(nil)

// NewRoleManager returns nil when guildID or roleID is empty, meaning no live
// role is managed.
func NewRoleManager(s Session, guildID, roleID string, logger *slog.Logger) *RoleManager {
	if guildID == "" || roleID == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleManager{s: s, guildID: guildID, roleID: roleID, now: time.Now, logger: logger}
}

// roleExists looks the role up, at most once per RoleCacheTTL.
func (r *RoleManager) roleExists(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fetchedAt.IsZero() && r.now().Sub(r.fetchedAt) < RoleCacheTTL {
		return r.roleFound, nil
	}
	roles, err := r.s.GuildRoles(r.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("discord: list roles: %w", err)
	}
	r.roleFound = slices.ContainsFunc(roles, func(role *discordgo.Role) bool { return role.ID == r.roleID })
	r.fetchedAt = r.now()
	return r.roleFound, nil
}

// member returns the guild member, or nil when the user is not in the guild.
func (r *RoleManager) member(ctx context.Context, userID string) (*discordgo.Member, error) {
	m, err := r.s.GuildMember(r.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		var rerr *discordgo.RESTError
		if errors.As(err, &rerr) && rerr.Message != nil && rerr.Message.Code == discordgo.ErrCodeUnknownMember {
			return nil, nil
		}
		return nil, fmt.Errorf("discord: fetch member: %w", err)
	}
	return m, nil
}

// Grant adds the live role to userID unless it is already held.
func (r *RoleManager) Grant(ctx context.Context, userID string) error {
	ok, err := r.roleExists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoleNotFound
	}
	m, err := r.member(ctx, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("discord: member %s not in guild", userID)
	}
	if slices.Contains(m.Roles, r.roleID) {
		return nil
	}
	if err := r.s.GuildMemberRoleAdd(r.guildID, userID, r.roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: add live role: %w", err)
	}
	r.logger.Info("live role granted", slog.String("user_id", userID))
	return nil
}

// Revoke removes the live role from userID. A missing role or member is
// not an error.
func (r *RoleManager) Revoke(ctx context.Context, userID string) error {
	ok, err := r.roleExists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	m, err := r.member(ctx, userID)
	if err != nil || m == nil {
		return err
	}
	if !slices.Contains(m.Roles, r.roleID) {
		return nil
	}
	if err := r.s.GuildMemberRoleRemove(r.guildID, userID, r.roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: remove live role: %w", err)
	}
	r.logger.Info("live role revoked", slog.String("user_id", userID))
	return nil
}
