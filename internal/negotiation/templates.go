package negotiation

import (
	"fmt"
	"strings"

	"github.com/loadline/closer/internal/models"
	"github.com/loadline/closer/internal/zone"
)

// Template names for outbound negotiation emails. Closed set; pickTemplate
// maps every action to exactly one.
const (
	templateCloseTheDeal = "close_the_deal"
	templateStandard     = "standard_negotiation"
	templateDecline      = "polite_decline"
)

// pickTemplate maps a classifier action to its email template.
func pickTemplate(action zone.Action) string {
	switch action {
	case zone.ActionClose:
		return templateCloseTheDeal
	case zone.ActionCounter:
		return templateStandard
	case zone.ActionDecline:
		return templateDecline
	}
	return templateStandard
}

// buildSubject builds the reply subject line before token tagging.
func buildSubject(load *models.Load) string {
	ref := loadRef(load)
	subject := fmt.Sprintf("Re: Load %s", ref)
	if load.Origin != "" && load.Destination != "" {
		subject = fmt.Sprintf("%s - %s to %s", subject, load.Origin, load.Destination)
	}
	return subject
}

// buildBody renders the dispatcher-style email body for a template. The
// load reference is always present so the broker's reply threads cleanly.
func buildBody(template string, load *models.Load, priceCents int64) string {
	ref := loadRef(load)
	lane := ""
	if load.Origin != "" && load.Destination != "" {
		lane = fmt.Sprintf(" %s to %s", load.Origin, load.Destination)
	}
	intro := fmt.Sprintf("Hi, this is dispatch checking in on load %s%s.", ref, lane)

	var body string
	switch template {
	case templateCloseTheDeal:
		body = fmt.Sprintf(
			"%s\n\nIf you can do %s all-in, we can lock this in now and get moving.\nSend over your confirmation and we'll finalize right away.",
			intro, zone.FormatCents(priceCents))
	case templateDecline:
		body = fmt.Sprintf(
			"%s\n\nWe appreciate the update, but we're too far apart on rate to make this one work.\nIf your number comes up, send it over and we'll take another look.",
			intro)
	default:
		body = fmt.Sprintf(
			"%s\n\nWe're interested and can do this for %s all-in.\nIf that works for you, we'll lock it down now.",
			intro, zone.FormatCents(priceCents))
	}

	if !strings.Contains(strings.ToLower(body), strings.ToLower(ref)) {
		body = fmt.Sprintf("%s\n\nRef: %s", body, ref)
	}
	return body
}

// buildIntroBody renders the initial outreach email for a fresh negotiation.
func buildIntroBody(load *models.Load) string {
	ref := loadRef(load)
	lane := ""
	if load.Origin != "" && load.Destination != "" {
		lane = fmt.Sprintf(" %s to %s", load.Origin, load.Destination)
	}
	return fmt.Sprintf(
		"Hi, this is dispatch reaching out on load %s%s.\n\nIs this load still available? We have a truck in position and can move quickly.\nWhat's your best all-in rate?",
		ref, lane)
}

func loadRef(load *models.Load) string {
	if load.RefID != "" {
		return load.RefID
	}
	return fmt.Sprintf("%d", load.ID)
}
