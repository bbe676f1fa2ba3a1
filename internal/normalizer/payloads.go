package normalizer

import "strings"

// CanonicalPayload is the wire shape of the custom webhook and the common
// target every source-specific payload converts into.
type CanonicalPayload struct {
	MediaType   string `json:"media_type"`
	Title       string `json:"title"`
	OriTitle    string `json:"ori_title"`
	Season      int    `json:"season"`
	Episode     int    `json:"episode"`
	ReleaseDate string `json:"release_date"`
	UserName    string `json:"user_name"`
	Source      string `json:"source,omitempty"`
}

// PlexPayload is the shape of a Plex webhook. Only media.scrobble events
// represent a finished episode.
type PlexPayload struct {
	Event   string `json:"event"`
	Account struct {
		Title string `json:"title"`
	} `json:"Account"`
	Metadata struct {
		Type                  string `json:"type"`
		GrandparentTitle      string `json:"grandparentTitle"`
		OriginalTitle         string `json:"originalTitle"`
		ParentIndex           int    `json:"parentIndex"`
		Index                 int    `json:"index"`
		OriginallyAvailableAt string `json:"originallyAvailableAt"`
	} `json:"Metadata"`
}

// Canonical converts the Plex payload, or reports a skip for event types that
// do not mean "watched".
func (p *PlexPayload) Canonical() (CanonicalPayload, error) {
	if p.Event != "media.scrobble" {
		return CanonicalPayload{}, &FilteredError{Reason: "event type " + p.Event + " does not need syncing"}
	}
	return CanonicalPayload{
		MediaType:   p.Metadata.Type,
		Title:       p.Metadata.GrandparentTitle,
		OriTitle:    p.Metadata.OriginalTitle,
		Season:      p.Metadata.ParentIndex,
		Episode:     p.Metadata.Index,
		ReleaseDate: p.Metadata.OriginallyAvailableAt,
		UserName:    p.Account.Title,
		Source:      "plex",
	}, nil
}

// EmbyPayload is the shape of an Emby webhook. markplayed always counts;
// playback.stop counts only when played to completion.
type EmbyPayload struct {
	Event string `json:"Event"`
	Item  struct {
		Type              string `json:"Type"`
		SeriesName        string `json:"SeriesName"`
		ParentIndexNumber int    `json:"ParentIndexNumber"`
		IndexNumber       int    `json:"IndexNumber"`
		PremiereDate      string `json:"PremiereDate"`
	} `json:"Item"`
	User struct {
		Name string `json:"Name"`
	} `json:"User"`
	PlaybackInfo struct {
		PlayedToCompletion bool `json:"PlayedToCompletion"`
	} `json:"PlaybackInfo"`
}

// Canonical converts the Emby payload.
func (p *EmbyPayload) Canonical() (CanonicalPayload, error) {
	switch p.Event {
	case "item.markplayed":
	case "playback.stop":
		if !p.PlaybackInfo.PlayedToCompletion {
			return CanonicalPayload{}, &FilteredError{Reason: "playback not completed"}
		}
	default:
		return CanonicalPayload{}, &FilteredError{Reason: "event type " + p.Event + " does not need syncing"}
	}

	releaseDate := p.Item.PremiereDate
	if len(releaseDate) > 10 {
		releaseDate = releaseDate[:10]
	}
	return CanonicalPayload{
		MediaType:   strings.ToLower(p.Item.Type),
		Title:       p.Item.SeriesName,
		Season:      p.Item.ParentIndexNumber,
		Episode:     p.Item.IndexNumber,
		ReleaseDate: releaseDate,
		UserName:    p.User.Name,
		Source:      "emby",
	}, nil
}

// JellyfinPayload is the shape of a Jellyfin webhook-plugin notification.
// Jellyfin's webhook template already flattens most fields.
type JellyfinPayload struct {
	NotificationType   string `json:"NotificationType"`
	PlayedToCompletion string `json:"PlayedToCompletion"`
	MediaType          string `json:"media_type"`
	Title              string `json:"title"`
	OriTitle           string `json:"ori_title"`
	Season             int    `json:"season"`
	Episode            int    `json:"episode"`
	ReleaseDate        string `json:"release_date"`
	UserName           string `json:"user_name"`
}

// Canonical converts the Jellyfin payload.
func (p *JellyfinPayload) Canonical() (CanonicalPayload, error) {
	if p.NotificationType != "PlaybackStop" {
		return CanonicalPayload{}, &FilteredError{Reason: "event type " + p.NotificationType + " does not need syncing"}
	}
	if p.PlayedToCompletion == "False" {
		return CanonicalPayload{}, &FilteredError{Reason: "playback not completed"}
	}
	return CanonicalPayload{
		MediaType:   strings.ToLower(p.MediaType),
		Title:       p.Title,
		OriTitle:    p.OriTitle,
		Season:      p.Season,
		Episode:     p.Episode,
		ReleaseDate: p.ReleaseDate,
		UserName:    p.UserName,
		Source:      "jellyfin",
	}, nil
}
