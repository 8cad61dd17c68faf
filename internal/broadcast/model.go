// Package broadcast provides the domain model for live "now playing" broadcasts,
// the profiles that author them, and the like events sent against them.
package broadcast

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TimBasler1996/Melora-sub001/internal/geo"
)

// MaxMessageLength is the maximum number of characters kept from a like message.
const MaxMessageLength = 160

// unknownName is shown when a profile has neither a first nor a last name.
const unknownName = "Unknown"

// Track identifies a catalog track by its catalog id.
type Track struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	ArtworkURL  string `json:"artwork_url,omitempty"`
	ExternalURL string `json:"external_url,omitempty"`
}

// Profile is the public identity of a broadcaster.
type Profile struct {
	ID              string   `json:"id"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Age             *int     `json:"age,omitempty"`
	City            string   `json:"city"`
	Gender          string   `json:"gender,omitempty"`
	CountryCode     string   `json:"country_code,omitempty"`
	HeroPhotoURL    string   `json:"hero_photo_url,omitempty"`
	ProfilePhotoURL string   `json:"profile_photo_url,omitempty"`
	PhotoURLs       []string `json:"photo_urls"`
}

// DisplayName returns the trimmed "first last" name, or "Unknown" when both are empty.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name == "" {
		return unknownName
	}
	return name
}

// PrimaryPhoto returns the first non-empty of the hero photo, the profile photo,
// and the first gallery photo. Returns "" when none is set.
func (p Profile) PrimaryPhoto() string {
	if p.HeroPhotoURL != "" {
		return p.HeroPhotoURL
	}
	if p.ProfilePhotoURL != "" {
		return p.ProfilePhotoURL
	}
	if len(p.PhotoURLs) > 0 {
		return p.PhotoURLs[0]
	}
	return ""
}

// Record is a raw feed item as stored in the broadcasts collection.
// Records are owned by the remote store and read-only to the engine.
type Record struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Track         Track      `json:"track"`
	BroadcastedAt time.Time  `json:"broadcasted_at"`
	Location      *geo.Point `json:"location,omitempty"`
}

// Enriched is a Record joined with its author's Profile.
// DistanceMeters is set only when both the viewer's and the broadcast's location are known.
type Enriched struct {
	ID             string     `json:"id"`
	Profile        Profile    `json:"profile"`
	Track          Track      `json:"track"`
	BroadcastedAt  time.Time  `json:"broadcasted_at"`
	Location       *geo.Point `json:"location,omitempty"`
	DistanceMeters *int       `json:"distance_meters,omitempty"`
}

// Enrich joins r with its author's profile.
func Enrich(r Record, p Profile) Enriched {
	var loc *geo.Point
	if r.Location != nil {
		l := *r.Location
		loc = &l
	}
	return Enriched{
		ID:            r.ID,
		Profile:       p,
		Track:         r.Track,
		BroadcastedAt: r.BroadcastedAt,
		Location:      loc,
	}
}

// UserID returns the id of the broadcaster.
func (e Enriched) UserID() string {
	return e.Profile.ID
}

// LikeEvent is the write-only record of one user liking another user's broadcast.
type LikeEvent struct {
	SenderID    string    `json:"sender_id"`
	ReceiverID  string    `json:"receiver_id"`
	TrackID     string    `json:"track_id"`
	TrackTitle  string    `json:"track_title"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	BroadcastID string    `json:"broadcast_id,omitempty"`
}

// NewLikeEvent builds the like event sent by senderID against target.
// The message is normalized with NormalizeMessage.
func NewLikeEvent(senderID string, target Enriched, message string, now time.Time) LikeEvent {
	return LikeEvent{
		SenderID:    senderID,
		ReceiverID:  target.UserID(),
		TrackID:     target.Track.ID,
		TrackTitle:  target.Track.Title,
		Message:     NormalizeMessage(message),
		CreatedAt:   now,
		BroadcastID: target.ID,
	}
}

// HasMessage reports whether the event carries a message.
func (e LikeEvent) HasMessage() bool {
	return e.Message != ""
}

// NormalizeMessage trims surrounding whitespace and truncates to MaxMessageLength runes.
// An empty result means "no message".
func NormalizeMessage(message string) string {
	trimmed := strings.TrimSpace(message)
	if utf8.RuneCountInString(trimmed) <= MaxMessageLength {
		return trimmed
	}
	runes := []rune(trimmed)
	return strings.TrimSpace(string(runes[:MaxMessageLength]))
}
