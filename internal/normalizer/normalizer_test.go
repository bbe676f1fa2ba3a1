package normalizer

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/models"
)

func testNormalizer() *Normalizer {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{
		Mode: config.ModeSingle,
		Bindings: map[string]config.AccountBinding{
			"alice": {UserName: "alice", BangumiUser: "alice_bgm", AccessToken: "tok"},
		},
		BlockedKeywords: []string{"无修", "里番"},
	}
	return New(cfg, logger)
}

func validPayload() CanonicalPayload {
	return CanonicalPayload{
		MediaType:   "episode",
		Title:       "葬送的芙莉莲",
		OriTitle:    "葬送のフリーレン",
		Season:      1,
		Episode:     5,
		ReleaseDate: "2023-10-27T00:00:00Z",
		UserName:    "alice",
	}
}

func TestNormalizeSuccess(t *testing.T) {
	n := testNormalizer()

	event, binding, err := n.Normalize(validPayload(), models.SourceEmby)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if event.Title != "葬送的芙莉莲" || event.Season != 1 || event.Episode != 5 {
		t.Errorf("event fields not carried: %+v", event)
	}
	if event.ReleaseDate != "2023-10-27" {
		t.Errorf("release date should be trimmed to a date, got %q", event.ReleaseDate)
	}
	if event.Source != models.SourceEmby {
		t.Errorf("expected emby source, got %s", event.Source)
	}
	if binding.BangumiUser != "alice_bgm" {
		t.Errorf("wrong binding resolved: %+v", binding)
	}
	if event.ReceivedAt.IsZero() {
		t.Errorf("ReceivedAt should be stamped")
	}
}

func TestNormalizeBlockedKeywordFiltered(t *testing.T) {
	n := testNormalizer()

	payload := validPayload()
	payload.Title = "某某番 无修版"
	_, _, err := n.Normalize(payload, models.SourceCustom)
	if !IsFiltered(err) {
		t.Fatalf("expected a filtered drop, got %v", err)
	}
}

func TestNormalizeBlockedKeywordInOriTitle(t *testing.T) {
	n := testNormalizer()

	payload := validPayload()
	payload.OriTitle = "里番 something"
	_, _, err := n.Normalize(payload, models.SourceCustom)
	if !IsFiltered(err) {
		t.Fatalf("expected a filtered drop, got %v", err)
	}
}

func TestNormalizeUnboundUserFiltered(t *testing.T) {
	n := testNormalizer()

	payload := validPayload()
	payload.UserName = "mallory"
	_, _, err := n.Normalize(payload, models.SourceCustom)
	if !IsFiltered(err) {
		t.Fatalf("expected a filtered drop for an unbound user, got %v", err)
	}
}

func TestNormalizeMovieFiltered(t *testing.T) {
	n := testNormalizer()

	payload := validPayload()
	payload.MediaType = "movie"
	_, _, err := n.Normalize(payload, models.SourceCustom)
	if !IsFiltered(err) {
		t.Fatalf("expected movies to be dropped, got %v", err)
	}
}

func TestNormalizeSpecialsRejected(t *testing.T) {
	n := testNormalizer()

	payload := validPayload()
	payload.Season = 0
	_, _, err := n.Normalize(payload, models.SourceCustom)
	if !IsValidation(err) {
		t.Fatalf("expected a validation error for season 0, got %v", err)
	}
}

func TestNormalizeEmptyTitleRejected(t *testing.T) {
	n := testNormalizer()

	payload := validPayload()
	payload.Title = "   "
	_, _, err := n.Normalize(payload, models.SourceCustom)
	if !IsValidation(err) {
		t.Fatalf("expected a validation error for an empty title, got %v", err)
	}
}

func TestNormalizePayloadSourceOverride(t *testing.T) {
	n := testNormalizer()

	payload := validPayload()
	payload.Source = "plex"
	event, _, err := n.Normalize(payload, models.SourceCustom)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if event.Source != models.SourcePlex {
		t.Errorf("payload source should win, got %s", event.Source)
	}
}

func TestPlexCanonical(t *testing.T) {
	var payload PlexPayload
	payload.Event = "media.scrobble"
	payload.Account.Title = "alice"
	payload.Metadata.Type = "episode"
	payload.Metadata.GrandparentTitle = "葬送的芙莉莲"
	payload.Metadata.OriginalTitle = "葬送のフリーレン"
	payload.Metadata.ParentIndex = 1
	payload.Metadata.Index = 5
	payload.Metadata.OriginallyAvailableAt = "2023-10-27"

	canonical, err := payload.Canonical()
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	if canonical.Title != "葬送的芙莉莲" || canonical.Season != 1 || canonical.Episode != 5 || canonical.UserName != "alice" {
		t.Errorf("unexpected canonical payload: %+v", canonical)
	}
}

func TestPlexNonScrobbleFiltered(t *testing.T) {
	payload := PlexPayload{Event: "media.play"}
	if _, err := payload.Canonical(); !IsFiltered(err) {
		t.Fatalf("media.play should be dropped, got %v", err)
	}
}

func TestEmbyIncompletePlaybackFiltered(t *testing.T) {
	var payload EmbyPayload
	payload.Event = "playback.stop"
	payload.PlaybackInfo.PlayedToCompletion = false
	if _, err := payload.Canonical(); !IsFiltered(err) {
		t.Fatalf("incomplete playback should be dropped, got %v", err)
	}
}

func TestEmbyMarkPlayedCanonical(t *testing.T) {
	var payload EmbyPayload
	payload.Event = "item.markplayed"
	payload.Item.Type = "Episode"
	payload.Item.SeriesName = "孤独摇滚"
	payload.Item.ParentIndexNumber = 1
	payload.Item.IndexNumber = 8
	payload.Item.PremiereDate = "2022-11-26T00:00:00.0000000Z"
	payload.User.Name = "alice"

	canonical, err := payload.Canonical()
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	if canonical.MediaType != "episode" {
		t.Errorf("media type should be lowercased, got %q", canonical.MediaType)
	}
	if canonical.ReleaseDate != "2022-11-26" {
		t.Errorf("premiere date should be trimmed, got %q", canonical.ReleaseDate)
	}
}

func TestJellyfinNotStopFiltered(t *testing.T) {
	payload := JellyfinPayload{NotificationType: "PlaybackStart"}
	if _, err := payload.Canonical(); !IsFiltered(err) {
		t.Fatalf("PlaybackStart should be dropped, got %v", err)
	}
}

func TestJellyfinCanonical(t *testing.T) {
	payload := JellyfinPayload{
		NotificationType:   "PlaybackStop",
		PlayedToCompletion: "True",
		MediaType:          "Episode",
		Title:              "孤独摇滚",
		Season:             1,
		Episode:            8,
		ReleaseDate:        "2022-11-26",
		UserName:           "alice",
	}

	canonical, err := payload.Canonical()
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	if canonical.Title != "孤独摇滚" || canonical.Episode != 8 {
		t.Errorf("unexpected canonical payload: %+v", canonical)
	}
}
