// Package domain defines the persistence models for voice sessions, caller
// profiles, conversation messages, summaries, and the indexed knowledge base.
// These types are mapped with GORM and form the core data layer of the
// voice-agent backend.
package domain

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// Profile lifecycle types.
const (
	ProfileAnonymous     = "anonymous"
	ProfileAuthenticated = "authenticated"
)

// Session web-search permission states.
const (
	SearchPermissionNone    = "none"
	SearchPermissionPending = "pending"
	SearchPermissionGranted = "granted"
	SearchPermissionDenied  = "denied"
)

// Profile represents a caller identity. A profile starts out anonymous,
// identified only by a device fingerprint, and may later be upgraded to an
// authenticated profile carrying a username and phone number. When an
// anonymous profile is merged into an authenticated one, the anonymous row
// is retained with MergedIntoProfileID set and is excluded from lookups.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Type: "anonymous" or "authenticated" (enforced by DB constraint).
//   - Fingerprint: device fingerprint; unique among non-merged anonymous rows.
//   - Username / PhoneNumber / Email: identity fields, set on authentication.
//   - SessionCount / MessageCount: lifetime counters, summed on merge.
//   - MergedIntoProfileID: set when this row was absorbed by another profile.
//   - Preferences: free-form JSON preferences map.
type Profile struct {
	ID                  string         `json:"id"           gorm:"type:char(36);primaryKey"`
	Type                string         `json:"type"         gorm:"type:varchar(16);not null;check:type IN ('anonymous','authenticated')"`
	Fingerprint         string         `json:"fingerprint"  gorm:"type:varchar(128);not null;index"`
	Username            string         `json:"username,omitempty"     gorm:"type:varchar(128);index"`
	PhoneNumber         string         `json:"phone_number,omitempty" gorm:"type:varchar(32);index"`
	Email               string         `json:"email,omitempty"        gorm:"type:varchar(255)"`
	SessionCount        int            `json:"session_count" gorm:"not null;default:0"`
	MessageCount        int            `json:"message_count" gorm:"not null;default:0"`
	MergedIntoProfileID *string        `json:"merged_into_profile_id,omitempty" gorm:"type:char(36);index"`
	Preferences         datatypes.JSON `json:"preferences,omitempty"`
	FirstSeenAt         time.Time      `json:"first_seen_at"`
	LastSeenAt          time.Time      `json:"last_seen_at"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Session represents one voice conversation between a participant and the
// agent inside a room. At most one active (EndedAt IS NULL) session may
// exist per room/participant pair; the partial picture is enforced at the
// registry layer and backed by the composite index here.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - RoomName / ParticipantIdentity: transport coordinates of the call.
//   - ProfileID: owning caller profile (indexed, repointed on merge).
//   - SearchPermission: web-search consent state machine value.
//   - PendingSearchQuery: the question awaiting the caller's consent; set
//     while SearchPermission is pending, empty otherwise.
//   - LastActivityAt: bumped on every recorded turn; drives idle sweeping.
//   - EndedAt / EndReason / DurationSeconds: populated when the session ends.
type Session struct {
	ID                  string         `json:"id"        gorm:"type:char(36);primaryKey"`
	RoomName            string         `json:"room_name" gorm:"type:varchar(128);not null;index:idx_room_participant,priority:1"`
	ParticipantIdentity string         `json:"participant_identity" gorm:"type:varchar(128);not null;index:idx_room_participant,priority:2"`
	ProfileID           string         `json:"profile_id" gorm:"type:char(36);not null;index"`
	SearchPermission    string         `json:"search_permission" gorm:"type:varchar(16);not null;default:'none';check:search_permission IN ('none','pending','granted','denied')"`
	PendingSearchQuery  string         `json:"pending_search_query,omitempty" gorm:"type:varchar(512);not null;default:''"`
	MessageCount        int            `json:"message_count" gorm:"not null;default:0"`
	LastActivityAt      time.Time      `json:"last_activity_at" gorm:"not null;index"`
	EndedAt             *time.Time     `json:"ended_at,omitempty" gorm:"index"`
	EndReason           string         `json:"end_reason,omitempty" gorm:"type:varchar(32)"`
	DurationSeconds     *float64       `json:"duration_seconds,omitempty"`
	Metadata            datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`

	// Profile is the owning caller. Sessions survive profile merges by
	// being repointed, never deleted.
	Profile Profile `json:"-" gorm:"foreignKey:ProfileID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Message represents a single conversation turn within a session, authored
// either by the "user" or the "assistant".
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	ProfileID string    `json:"profile_id" gorm:"type:char(36);not null;index"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_session_msgs,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`

	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// ConversationSummary captures the distilled outcome of an ended session:
// main topics, detected intent, sentiment, and whether the caller's issue
// was resolved. One summary per session.
type ConversationSummary struct {
	ID               string         `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID        string         `json:"session_id" gorm:"type:char(36);not null;uniqueIndex"`
	ProfileID        string         `json:"profile_id" gorm:"type:char(36);not null;index"`
	Summary          string         `json:"summary"    gorm:"type:text;not null"`
	Intent           string         `json:"intent,omitempty"    gorm:"type:varchar(64)"`
	Sentiment        string         `json:"sentiment,omitempty" gorm:"type:varchar(16)"`
	ResolutionStatus string         `json:"resolution_status,omitempty" gorm:"type:varchar(16)"`
	Topics           datatypes.JSON `json:"topics,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationSummary.
func (ConversationSummary) TableName() string { return "conversation_summaries" }

// DocumentSource tracks an indexed knowledge-base document. The content hash
// lets the indexer skip re-embedding when the document has not changed.
type DocumentSource struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name"         gorm:"type:varchar(255);not null;uniqueIndex"`
	ContentHash string    `json:"content_hash" gorm:"type:char(64);not null"`
	ChunkCount  int       `json:"chunk_count"  gorm:"not null;default:0"`
	IndexedAt   time.Time `json:"indexed_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for DocumentSource.
func (DocumentSource) TableName() string { return "document_sources" }

// DocumentChunk is one embedded slice of a source document. The Embedding
// column requires the pgvector extension and is therefore only migrated on
// Postgres; unit tests exercise chunk consumers through fakes.
type DocumentChunk struct {
	ID         string           `json:"id"          gorm:"type:char(36);primaryKey"`
	SourceID   string           `json:"source_id"   gorm:"type:char(36);not null;uniqueIndex:ux_source_chunk,priority:1"`
	SourceName string           `json:"source_name" gorm:"type:varchar(255);not null;index"`
	ChunkIndex int              `json:"chunk_index" gorm:"not null;uniqueIndex:ux_source_chunk,priority:2"`
	Content    string           `json:"content"     gorm:"type:text;not null"`
	Embedding  *pgvector.Vector `json:"-"           gorm:"type:vector(768)"`
	Metadata   datatypes.JSON   `json:"metadata,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// TableName returns the database table name for DocumentChunk.
func (DocumentChunk) TableName() string { return "document_chunks" }
