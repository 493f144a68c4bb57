package domain

type IdentityKind string

const (
	IdentityAuthenticated IdentityKind = "authenticated"
	IdentityAnonymous     IdentityKind = "anonymous"
)

// Identity is the resolved actor for a browser context: an authenticated user
// or an anonymous session. Exactly one kind is active at a time.
type Identity struct {
	Kind      IdentityKind
	UserID    string
	SessionID string
}

func AuthenticatedIdentity(userID string) Identity {
	return Identity{Kind: IdentityAuthenticated, UserID: userID}
}

func AnonymousIdentity(sessionID string) Identity {
	return Identity{Kind: IdentityAnonymous, SessionID: sessionID}
}

// ActorID returns the stable id grouping this identity's messages into one
// conversation.
func (i Identity) ActorID() string {
	if i.Kind == IdentityAuthenticated {
		return i.UserID
	}
	return i.SessionID
}

func (i Identity) Authenticated() bool {
	return i.Kind == IdentityAuthenticated
}

// Scope returns the conversation scope addressed by this identity.
func (i Identity) Scope() ConversationScope {
	return ConversationScope{Kind: i.Kind, ActorID: i.ActorID()}
}

// ConversationScope identifies one conversation by its visitor-side actor id.
// All addressing filters derive from this value, instead of rebuilding
// sender/session disjunctions at every call site.
type ConversationScope struct {
	// Kind is empty for admin-derived scopes, where only the actor id is
	// known.
	Kind    IdentityKind
	ActorID string
}

// ScopeForActor builds a scope from a bare actor id, as the admin console
// does when opening a visitor conversation.
func ScopeForActor(actorID string) ConversationScope {
	return ConversationScope{ActorID: actorID}
}

// Key is the realtime channel name for this conversation.
func (s ConversationScope) Key() string {
	return "conversation:" + s.ActorID
}

// Matches reports whether m belongs to this scope. Inbound change events must
// pass this filter before reaching consumers, even when the transport claims
// to filter, because the transport may deliver out-of-scope events.
func (s ConversationScope) Matches(m Message) bool {
	if s.ActorID == "" {
		return false
	}
	if m.SenderID != nil && *m.SenderID == s.ActorID {
		return true
	}
	if m.SessionID != nil && *m.SessionID == s.ActorID {
		return true
	}
	if m.IsAdmin && m.RecipientID != nil && *m.RecipientID == s.ActorID {
		return true
	}
	return false
}
