package research

import (
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/vmihailenco/msgpack/v5"
)

// Compose distills ranked results into a capsule: at most four claims of 160
// chars, at most four {host, date} sources, and a hard 4 KB serialized cap.
// URLs and snippets are stripped by design.
func Compose(batchID, topic string, ttlClass models.TTLClass, recency models.RecencyHint, ranked []rankedResult) *models.ResearchCapsule {
	capsule := &models.ResearchCapsule{
		BatchID:   batchID,
		Topic:     topic,
		TTLClass:  ttlClass,
		Recency:   recency,
		CreatedAt: time.Now(),
	}

	hosts := make(map[string]bool)
	for _, r := range ranked {
		if len(capsule.Claims) >= models.CapsuleMaxClaims {
			break
		}
		claim := claimFrom(r)
		if claim == "" {
			continue
		}
		capsule.Claims = append(capsule.Claims, claim)
		if len(capsule.Sources) < models.CapsuleMaxSources {
			capsule.Sources = append(capsule.Sources, models.CapsuleSource{
				Host: r.Host,
				Date: r.Date,
			})
		}
		hosts[r.Host] = true
	}

	if len(hosts) >= 2 {
		capsule.Confidence = "high"
	} else {
		capsule.Confidence = "med"
	}

	// Enforce the serialized cap by dropping lowest-ranked entries
	for len(capsule.Claims) > 0 {
		raw, err := msgpack.Marshal(capsule)
		if err == nil && len(raw) <= models.CapsuleMaxBytes {
			break
		}
		capsule.Claims = capsule.Claims[:len(capsule.Claims)-1]
		if len(capsule.Sources) > len(capsule.Claims) {
			capsule.Sources = capsule.Sources[:len(capsule.Claims)]
		}
	}

	if len(capsule.Claims) == 0 {
		return nil
	}
	return capsule
}

// claimFrom compresses a result into one claim line. Snippets beat bare
// titles; both are clipped to the claim limit.
func claimFrom(r rankedResult) string {
	text := strings.TrimSpace(r.Snippet)
	if text == "" {
		text = strings.TrimSpace(r.Title)
	}
	if text == "" {
		return ""
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > models.CapsuleMaxClaimLen {
		cut := models.Clip(text, models.CapsuleMaxClaimLen)
		if idx := strings.LastIndex(cut, " "); idx > models.CapsuleMaxClaimLen/2 {
			cut = cut[:idx]
		}
		text = cut
	}
	return text
}
