// Package orchestrator owns the flows that tie the user directory to the
// chat transport: minting identities on first use, establishing threads,
// and delivering assistant replies back into the right thread.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meshchat/bridge/internal/directory"
	"github.com/meshchat/bridge/internal/transport"
)

const (
	assistantTagline = "Always-on finance guide"
	assistantPersona = "Financial wellness coach"

	previewLimit = 120
)

var (
	ErrSelfConversation = errors.New("cannot start a thread with yourself")
	ErrPeerNotHuman     = errors.New("peer must be a human user")
	ErrNotParticipant   = errors.New("user is not part of this thread")
)

// IdentityMinter mints transport identities and short-lived chat tokens.
type IdentityMinter interface {
	CreateIdentity(ctx context.Context) (string, error)
	IssueToken(ctx context.Context, userID string, scopes []string) (transport.AccessToken, error)
}

// ChatTransport is the slice of the chat client the orchestrator uses.
type ChatTransport interface {
	CreateThread(ctx context.Context, token, topic string, participants []transport.Participant) (string, error)
	SendMessage(ctx context.Context, token, threadID, content, senderDisplayName string) (string, error)
}

// AssistantProfile describes the built-in assistant for clients.
type AssistantProfile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Tagline           string `json:"tagline"`
	Persona           string `json:"persona"`
	TransportIdentity string `json:"transportIdentity,omitempty"`
}

// Credentials is everything a client needs to join one thread.
type Credentials struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	EndpointURL string `json:"endpointUrl"`
	Token       string `json:"token"`
	ThreadID    string `json:"threadId"`
	Topic       string `json:"topic"`
}

type Orchestrator struct {
	log      *slog.Logger
	store    *directory.Store
	identity IdentityMinter
	chat     ChatTransport
	endpoint string
}

func New(log *slog.Logger, store *directory.Store, identity IdentityMinter, chat ChatTransport, endpoint string) *Orchestrator {
	return &Orchestrator{
		log:      log.With(slog.String("component", "orchestrator")),
		store:    store,
		identity: identity,
		chat:     chat,
		endpoint: endpoint,
	}
}

// EnsureUserIdentity mints a transport identity for the user on first use
// and persists it. Subsequent calls are no-ops.
func (o *Orchestrator) EnsureUserIdentity(ctx context.Context, user directory.User) (directory.User, error) {
	if user.TransportIdentity != "" {
		return user, nil
	}
	id, err := o.identity.CreateIdentity(ctx)
	if err != nil {
		return directory.User{}, fmt.Errorf("create identity for %s: %w", user.ID, err)
	}
	user.TransportIdentity = id
	user.LastSeenAt = time.Now().UTC()
	if err := o.store.SaveUser(ctx, user); err != nil {
		return directory.User{}, err
	}
	return user, nil
}

// IssueToken returns a chat-scoped token for the user, minting an identity
// first if needed.
func (o *Orchestrator) IssueToken(ctx context.Context, user directory.User) (string, error) {
	ensured, err := o.EnsureUserIdentity(ctx, user)
	if err != nil {
		return "", err
	}
	tok, err := o.identity.IssueToken(ctx, ensured.TransportIdentity, []string{transport.ScopeChat})
	if err != nil {
		return "", fmt.Errorf("issue token for %s: %w", user.ID, err)
	}
	ensured.LastSeenAt = time.Now().UTC()
	if err := o.store.SaveUser(ctx, ensured); err != nil {
		return "", err
	}
	return tok.Token, nil
}

// EnsureThread returns the thread for the exact participant set, creating
// it on the transport first when no record exists.
func (o *Orchestrator) EnsureThread(ctx context.Context, participantIDs []string, mode directory.ThreadMode, topic string) (directory.Thread, error) {
	existing, err := o.store.GetThreadByParticipants(ctx, participantIDs)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return directory.Thread{}, err
	}

	initiator, err := o.store.GetUser(ctx, participantIDs[0])
	if err != nil {
		return directory.Thread{}, fmt.Errorf("initiator: %w", err)
	}
	token, err := o.IssueToken(ctx, initiator)
	if err != nil {
		return directory.Thread{}, err
	}

	participants := make([]transport.Participant, 0, len(participantIDs))
	for _, id := range participantIDs {
		user, err := o.store.GetUser(ctx, id)
		if err != nil {
			return directory.Thread{}, fmt.Errorf("participant %s: %w", id, err)
		}
		ensured, err := o.EnsureUserIdentity(ctx, user)
		if err != nil {
			return directory.Thread{}, err
		}
		participants = append(participants, transport.Participant{
			UserID:      ensured.TransportIdentity,
			DisplayName: ensured.DisplayName,
		})
	}

	transportThreadID, err := o.chat.CreateThread(ctx, token, topic, participants)
	if err != nil {
		return directory.Thread{}, fmt.Errorf("create thread: %w", err)
	}

	now := time.Now().UTC()
	thread := directory.Thread{
		ID:                 uuid.NewString(),
		TransportThreadID:  transportThreadID,
		Mode:               mode,
		Topic:              topic,
		ParticipantIDs:     participantIDs,
		CreatedAt:          now,
		LastActivityAt:     now,
		LastMessagePreview: "Conversation started",
	}
	if err := o.store.SaveThread(ctx, thread); err != nil {
		return directory.Thread{}, err
	}
	o.log.Info("thread created",
		slog.String("thread_id", thread.ID),
		slog.String("transport_thread_id", transportThreadID),
		slog.String("mode", string(mode)))
	return thread, nil
}

// Assistant returns the assistant profile, minting its identity on demand.
func (o *Orchestrator) Assistant(ctx context.Context) (AssistantProfile, error) {
	assistant, err := o.assistantRecord(ctx)
	if err != nil {
		return AssistantProfile{}, err
	}
	ensured, err := o.EnsureUserIdentity(ctx, assistant)
	if err != nil {
		return AssistantProfile{}, err
	}
	return AssistantProfile{
		ID:                ensured.ID,
		DisplayName:       ensured.DisplayName,
		Tagline:           assistantTagline,
		Persona:           assistantPersona,
		TransportIdentity: ensured.TransportIdentity,
	}, nil
}

func (o *Orchestrator) assistantRecord(ctx context.Context) (directory.User, error) {
	users, err := o.store.ListUsers(ctx)
	if err != nil {
		return directory.User{}, err
	}
	for _, u := range users {
		if u.Role == directory.RoleAssistant {
			return u, nil
		}
	}
	return directory.User{}, fmt.Errorf("assistant profile: %w", directory.ErrNotFound)
}

// StartUserConversation ensures a human-to-human thread between the two users.
func (o *Orchestrator) StartUserConversation(ctx context.Context, initiatorID, peerID string) (directory.Thread, error) {
	if initiatorID == peerID {
		return directory.Thread{}, ErrSelfConversation
	}
	initiator, err := o.store.GetUser(ctx, initiatorID)
	if err != nil {
		return directory.Thread{}, err
	}
	peer, err := o.store.GetUser(ctx, peerID)
	if err != nil {
		return directory.Thread{}, err
	}
	if peer.Role != directory.RoleHuman {
		return directory.Thread{}, ErrPeerNotHuman
	}
	topic := fmt.Sprintf("%s ↔ %s", firstName(initiator.DisplayName), firstName(peer.DisplayName))
	return o.EnsureThread(ctx, []string{initiatorID, peerID}, directory.ModeUser, topic)
}

// StartAiConversation ensures the user's thread with the assistant.
func (o *Orchestrator) StartAiConversation(ctx context.Context, userID string) (directory.Thread, error) {
	assistant, err := o.Assistant(ctx)
	if err != nil {
		return directory.Thread{}, err
	}
	human, err := o.store.GetUser(ctx, userID)
	if err != nil {
		return directory.Thread{}, err
	}
	topic := fmt.Sprintf("%s with %s", assistant.DisplayName, firstName(human.DisplayName))
	return o.EnsureThread(ctx, []string{userID, assistant.ID}, directory.ModeAI, topic)
}

// ChatCredentialsForThread issues fresh credentials for a thread member.
func (o *Orchestrator) ChatCredentialsForThread(ctx context.Context, userID, threadID string) (Credentials, error) {
	user, err := o.store.GetUser(ctx, userID)
	if err != nil {
		return Credentials{}, err
	}
	thread, err := o.store.GetThread(ctx, threadID)
	if err != nil {
		return Credentials{}, err
	}
	member := false
	for _, id := range thread.ParticipantIDs {
		if id == userID {
			member = true
			break
		}
	}
	if !member {
		return Credentials{}, ErrNotParticipant
	}

	token, err := o.IssueToken(ctx, user)
	if err != nil {
		return Credentials{}, err
	}
	ensured, err := o.store.GetUser(ctx, userID)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		UserID:      ensured.TransportIdentity,
		DisplayName: ensured.DisplayName,
		EndpointURL: o.endpoint,
		Token:       token,
		ThreadID:    thread.TransportThreadID,
		Topic:       thread.Topic,
	}, nil
}

// DeliverAssistantResponse sends the assistant's reply into the user's ai
// thread, creating the thread first when the user has none. Empty replies
// are dropped without error.
func (o *Orchestrator) DeliverAssistantResponse(ctx context.Context, userID, messageText string) error {
	trimmed := strings.TrimSpace(messageText)
	if trimmed == "" {
		return nil
	}

	human, err := o.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	assistant, err := o.Assistant(ctx)
	if err != nil {
		return err
	}
	assistantRecord, err := o.store.GetUser(ctx, assistant.ID)
	if err != nil {
		return err
	}

	thread, err := o.store.GetThreadByParticipants(ctx, []string{userID, assistant.ID})
	if errors.Is(err, directory.ErrNotFound) {
		topic := fmt.Sprintf("%s with %s", assistant.DisplayName, firstName(human.DisplayName))
		thread, err = o.EnsureThread(ctx, []string{userID, assistant.ID}, directory.ModeAI, topic)
	}
	if err != nil {
		return err
	}

	token, err := o.IssueToken(ctx, assistantRecord)
	if err != nil {
		return err
	}
	if _, err := o.chat.SendMessage(ctx, token, thread.TransportThreadID, trimmed, assistantRecord.DisplayName); err != nil {
		return fmt.Errorf("send assistant message: %w", err)
	}

	thread.LastActivityAt = time.Now().UTC()
	thread.LastMessagePreview = preview(trimmed)
	return o.store.SaveThread(ctx, thread)
}

func firstName(displayName string) string {
	if i := strings.IndexByte(displayName, ' '); i > 0 {
		return displayName[:i]
	}
	return displayName
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit])
}
