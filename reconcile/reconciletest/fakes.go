// Package reconciletest provides in-memory Notifier and RoleManager fakes.
package reconciletest

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/noxrp/stream-notifier/reconcile"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// Sent is one message posted through the fake notifier.
type Sent struct {
	ChannelID string
	MessageID string
	Payload   reconcile.Payload
}

// Notifier keeps posted messages in memory.
type Notifier struct {
	mu       sync.Mutex
	next     int
	messages map[string]Sent

	Sends     []Sent
	Deletes   []string
	Probes    []string
	FailSend  bool
	FailDel   bool
	FailProbe bool
}

// NewNotifier returns an empty fake.
func NewNotifier() *Notifier {
	return &Notifier{messages: map[string]Sent{}}
}

func (n *Notifier) Send(_ context.Context, channelID string, p reconcile.Payload) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.FailSend {
		return "", ErrInjected
	}
	n.next++
	id := "msg-" + strconv.Itoa(n.next)
	s := Sent{ChannelID: channelID, MessageID: id, Payload: p}
	n.messages[id] = s
	n.Sends = append(n.Sends, s)
	return id, nil
}

func (n *Notifier) Delete(_ context.Context, _ string, messageID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Deletes = append(n.Deletes, messageID)
	if n.FailDel {
		return ErrInjected
	}
	delete(n.messages, messageID)
	return nil
}

func (n *Notifier) Exists(_ context.Context, _ string, messageID string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Probes = append(n.Probes, messageID)
	if n.FailProbe {
		return false, ErrInjected
	}
	_, ok := n.messages[messageID]
	return ok, nil
}

// Seed marks messageID as an existing message, e.g. one from a previous run.
func (n *Notifier) Seed(channelID, messageID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[messageID] = Sent{ChannelID: channelID, MessageID: messageID}
}

// Vanish removes a message out-of-band, like a moderator would.
func (n *Notifier) Vanish(messageID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.messages, messageID)
}

// Live returns the number of messages currently posted.
func (n *Notifier) Live() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// SendCount returns len(Sends) under the lock.
func (n *Notifier) SendCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Sends)
}

// Roles records grants and revocations in call order.
type Roles struct {
	mu      sync.Mutex
	held    map[string]bool
	Calls   []string
	FailAll bool
}

// NewRoles returns an empty fake.
func NewRoles() *Roles { return &Roles{held: map[string]bool{}} }

func (r *Roles) Grant(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "grant:"+userID)
	if r.FailAll {
		return ErrInjected
	}
	r.held[userID] = true
	return nil
}

func (r *Roles) Revoke(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, "revoke:"+userID)
	if r.FailAll {
		return ErrInjected
	}
	delete(r.held, userID)
	return nil
}

// Holds reports whether userID currently has the role.
func (r *Roles) Holds(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held[userID]
}
