package discord

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession records calls and keeps messages and members in memory.
type fakeSession struct {
	mu       sync.Mutex
	next     int
	messages map[string]*discordgo.MessageSend
	replies  []string
	members  map[string][]string
	roles    []*discordgo.Role
	channels map[string]*discordgo.Channel
	perms    int64

	roleCalls   int
	roleAdds    []string
	roleRemoves []string
	sendErr     error
	deleteErr   error
	getErr      error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		messages: map[string]*discordgo.MessageSend{},
		members:  map[string][]string{},
		channels: map[string]*discordgo.Channel{},
	}
}

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: strconv.Itoa(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "error"},
	}
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, content)
	return &discordgo.Message{ID: "reply", ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.next++
	id := "m" + strconv.Itoa(f.next)
	f.messages[id] = data
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: data.Content}, nil
}

func (f *fakeSession) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if _, ok := f.messages[messageID]; !ok {
		return nil, restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage)
	}
	return &discordgo.Message{ID: messageID, ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelMessageDelete(_ string, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.messages[messageID]; !ok {
		return restError(http.StatusNotFound, discordgo.ErrCodeUnknownMessage)
	}
	delete(f.messages, messageID)
	return nil
}

func (f *fakeSession) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel)
	}
	return ch, nil
}

func (f *fakeSession) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleCalls++
	return f.roles, nil
}

func (f *fakeSession) GuildMember(_, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles, ok := f.members[userID]
	if !ok {
		return nil, restError(http.StatusNotFound, discordgo.ErrCodeUnknownMember)
	}
	return &discordgo.Member{User: &discordgo.User{ID: userID}, Roles: append([]string(nil), roles...)}, nil
}

func (f *fakeSession) GuildMemberRoleAdd(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleAdds = append(f.roleAdds, userID)
	f.members[userID] = append(f.members[userID], roleID)
	return nil
}

func (f *fakeSession) GuildMemberRoleRemove(_, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleRemoves = append(f.roleRemoves, userID)
	var kept []string
	for _, r := range f.members[userID] {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	f.members[userID] = kept
	return nil
}

func (f *fakeSession) UserChannelPermissions(string, string, ...discordgo.RequestOption) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms, nil
}

func (f *fakeSession) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

type fakeOpener struct {
	errs  []error
	calls int
}

func (o *fakeOpener) Open() error {
	o.calls++
	if len(o.errs) == 0 {
		return nil
	}
	err := o.errs[0]
	o.errs = o.errs[1:]
	return err
}

func TestLoginDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{4, 32 * time.Second},
		{5, 60 * time.Second},
		{6, 60 * time.Second},
		{20, 60 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LoginDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestLogin_AuthErrorIsFatal(t *testing.T) {
	o := &fakeOpener{errs: []error{restError(http.StatusUnauthorized, 0)}}
	err := Login(context.Background(), o, nil)
	require.Error(t, err)
	assert.Equal(t, 1, o.calls)
}

func TestLogin_StopsOnCancel(t *testing.T) {
	o := &fakeOpener{errs: []error{errors.New("dial tcp: connection reset"), errors.New("again")}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := Login(ctx, o, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, o.calls)
}

func TestLogin_Succeeds(t *testing.T) {
	o := &fakeOpener{}
	require.NoError(t, Login(context.Background(), o, nil))
	assert.Equal(t, 1, o.calls)
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(errors.New("websocket: close 4004: Authentication failed.")))
	assert.True(t, IsAuthError(restError(http.StatusUnauthorized, 0)))
	assert.False(t, IsAuthError(errors.New("dial tcp: i/o timeout")))
	assert.False(t, IsAuthError(nil))
}

func TestNewSession(t *testing.T) {
	_, err := NewSession("  ")
	require.Error(t, err)

	s, err := NewSession("abc")
	require.NoError(t, err)
	assert.Equal(t, "Bot abc", s.Token)
	assert.NotZero(t, s.Identify.Intents&discordgo.IntentsMessageContent)
}
