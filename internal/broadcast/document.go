package broadcast

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TimBasler1996/Melora-sub001/internal/geo"
)

// Field names of the broadcasts collection.
const (
	FieldUserID           = "userId"
	FieldTrackID          = "trackId"
	FieldTrackTitle       = "trackTitle"
	FieldTrackArtist      = "trackArtist"
	FieldTrackAlbum       = "trackAlbum"
	FieldTrackArtworkURL  = "trackArtworkURL"
	FieldExternalTrackURL = "externalTrackURL"
	FieldBroadcastedAt    = "broadcastedAt"
	FieldLocation         = "location"
)

// Field names of the users collection.
const (
	FieldFirstName        = "firstName"
	FieldLastName         = "lastName"
	FieldAge              = "age"
	FieldBirthday         = "birthday"
	FieldCity             = "city"
	FieldGender           = "gender"
	FieldCountryCode      = "countryCode"
	FieldHeroPhotoURL     = "heroPhotoURL"
	FieldProfilePhotoURL  = "profilePhotoURL"
	FieldAvatarURL        = "avatarURL"
	FieldSpotifyAvatarURL = "spotifyAvatarURL"
	FieldPhotoURLs        = "photoURLs"
)

// Decoding errors.
var (
	ErrMissingUserID  = errors.New("broadcast is missing userId")
	ErrMissingTrackID = errors.New("broadcast is missing trackId")
	ErrMissingID      = errors.New("document id cannot be empty")
)

// RecordFromFields decodes a broadcasts document into a Record.
// An unparseable or out-of-range location is dropped rather than failing the record.
func RecordFromFields(id string, fields map[string]any) (Record, error) {
	if id == "" {
		return Record{}, ErrMissingID
	}
	userID := stringField(fields, FieldUserID)
	if userID == "" {
		return Record{}, fmt.Errorf("broadcast %s: %w", id, ErrMissingUserID)
	}
	trackID := stringField(fields, FieldTrackID)
	if trackID == "" {
		return Record{}, fmt.Errorf("broadcast %s: %w", id, ErrMissingTrackID)
	}

	r := Record{
		ID:     id,
		UserID: userID,
		Track: Track{
			ID:          trackID,
			Title:       stringField(fields, FieldTrackTitle),
			Artist:      stringField(fields, FieldTrackArtist),
			Album:       stringField(fields, FieldTrackAlbum),
			ArtworkURL:  stringField(fields, FieldTrackArtworkURL),
			ExternalURL: stringField(fields, FieldExternalTrackURL),
		},
	}
	if ts, ok := timeField(fields, FieldBroadcastedAt); ok {
		r.BroadcastedAt = ts
	}
	if loc, ok := pointField(fields, FieldLocation); ok {
		r.Location = &loc
	}
	return r, nil
}

// Fields encodes r into the broadcasts document layout.
func (r Record) Fields() map[string]any {
	fields := map[string]any{
		FieldUserID:        r.UserID,
		FieldTrackID:       r.Track.ID,
		FieldTrackTitle:    r.Track.Title,
		FieldTrackArtist:   r.Track.Artist,
		FieldBroadcastedAt: r.BroadcastedAt,
	}
	putString(fields, FieldTrackAlbum, r.Track.Album)
	putString(fields, FieldTrackArtworkURL, r.Track.ArtworkURL)
	putString(fields, FieldExternalTrackURL, r.Track.ExternalURL)
	if r.Location != nil {
		fields[FieldLocation] = map[string]any{
			"latitude":  r.Location.Lat,
			"longitude": r.Location.Lng,
		}
	}
	return fields
}

// ProfileFromFields decodes a users document into a Profile.
// Legacy avatar fields are used when profilePhotoURL is absent, and age is
// derived from birthday when not stored directly.
func ProfileFromFields(id string, fields map[string]any, now time.Time) (Profile, error) {
	if id == "" {
		return Profile{}, ErrMissingID
	}
	p := Profile{
		ID:           id,
		FirstName:    stringField(fields, FieldFirstName),
		LastName:     stringField(fields, FieldLastName),
		City:         stringField(fields, FieldCity),
		Gender:       stringField(fields, FieldGender),
		CountryCode:  stringField(fields, FieldCountryCode),
		HeroPhotoURL: stringField(fields, FieldHeroPhotoURL),
		PhotoURLs:    stringsField(fields, FieldPhotoURLs),
	}

	p.ProfilePhotoURL = firstNonEmpty(
		stringField(fields, FieldProfilePhotoURL),
		stringField(fields, FieldAvatarURL),
		stringField(fields, FieldSpotifyAvatarURL),
	)

	if age, ok := intField(fields, FieldAge); ok && age > 0 {
		p.Age = &age
	} else if birthday, ok := timeField(fields, FieldBirthday); ok {
		if age := AgeAt(birthday, now); age > 0 {
			p.Age = &age
		}
	}
	return p, nil
}

// Fields encodes p into the users document layout.
func (p Profile) Fields() map[string]any {
	fields := map[string]any{
		FieldFirstName: p.FirstName,
		FieldLastName:  p.LastName,
		FieldCity:      p.City,
		FieldPhotoURLs: append([]string(nil), p.PhotoURLs...),
	}
	putString(fields, FieldGender, p.Gender)
	putString(fields, FieldCountryCode, p.CountryCode)
	putString(fields, FieldHeroPhotoURL, p.HeroPhotoURL)
	putString(fields, FieldProfilePhotoURL, p.ProfilePhotoURL)
	if p.Age != nil {
		fields[FieldAge] = *p.Age
	}
	return fields
}

// Fields encodes e into the likes document layout.
func (e LikeEvent) Fields() map[string]any {
	fields := map[string]any{
		"senderId":   e.SenderID,
		"receiverId": e.ReceiverID,
		"trackId":    e.TrackID,
		"trackTitle": e.TrackTitle,
		"createdAt":  e.CreatedAt,
	}
	putString(fields, "message", e.Message)
	putString(fields, "broadcastId", e.BroadcastID)
	return fields
}

// AgeAt returns the number of full years between birthday and now.
func AgeAt(birthday, now time.Time) int {
	if birthday.IsZero() || now.Before(birthday) {
		return 0
	}
	years := now.Year() - birthday.Year()
	if now.Month() < birthday.Month() || (now.Month() == birthday.Month() && now.Day() < birthday.Day()) {
		years--
	}
	return years
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func putString(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

func stringsField(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func intField(fields map[string]any, key string) (int, bool) {
	switch v := fields[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// timeField accepts time.Time, unix seconds, and RFC 3339 strings.
func timeField(fields map[string]any, key string) (time.Time, bool) {
	switch v := fields[key].(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case int64:
		return time.Unix(v, 0).UTC(), true
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

// pointField accepts geo.Point values and {latitude, longitude} or {lat, lng} maps.
func pointField(fields map[string]any, key string) (geo.Point, bool) {
	var p geo.Point
	switch v := fields[key].(type) {
	case geo.Point:
		p = v
	case *geo.Point:
		if v == nil {
			return geo.Point{}, false
		}
		p = *v
	case map[string]any:
		lat, latOK := floatValue(firstPresent(v, "latitude", "lat"))
		lng, lngOK := floatValue(firstPresent(v, "longitude", "lng"))
		if !latOK || !lngOK {
			return geo.Point{}, false
		}
		p = geo.Point{Lat: lat, Lng: lng}
	default:
		return geo.Point{}, false
	}
	if !p.Valid() {
		return geo.Point{}, false
	}
	return p, true
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}
