package service

import (
	"rfx-assist-go/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newComposer() PromptComposer {
	return PromptComposer{DefaultLength: "medium", DefaultTone: "professional"}
}

func TestComposeGroundedEmbedsEvidence(t *testing.T) {
	composer := newComposer()
	msg := composer.Compose([]string{"fact one", "fact two"}, model.RFxProposal, model.Options{}, true)

	assert.Equal(t, "system", msg.Role)
	assert.Contains(t, msg.Content, "fact one\nfact two")
	assert.Contains(t, msg.Content, "proposal response")
	assert.Contains(t, msg.Content, "medium in length")
	assert.Contains(t, msg.Content, "professional in tone")
}

func TestComposeRespectsExplicitOptions(t *testing.T) {
	composer := newComposer()
	msg := composer.Compose([]string{"fact"}, model.RFxComment, model.Options{Length: "short", Tone: "casual"}, true)

	assert.Contains(t, msg.Content, "review comment")
	assert.Contains(t, msg.Content, "short in length")
	assert.Contains(t, msg.Content, "casual in tone")
}

func TestComposeFallbackStrictSuppressesCitations(t *testing.T) {
	composer := newComposer()

	strict := composer.Compose(nil, model.RFxProposal, model.Options{}, true)
	assert.Contains(t, strict.Content, "No reference material")
	assert.Contains(t, strict.Content, "Do not fabricate citations")

	loose := composer.Compose(nil, model.RFxProposal, model.Options{}, false)
	assert.Contains(t, loose.Content, "No reference material")
	assert.NotContains(t, loose.Content, "Do not fabricate citations")
}

func TestComposeRefineJoinsWithSpaces(t *testing.T) {
	composer := newComposer()
	msg := composer.ComposeRefine([]string{"fact one", "fact two"}, model.RFxProposal, model.Options{})

	assert.Contains(t, msg.Content, "refining a previous answer")
	assert.Contains(t, msg.Content, "fact one fact two")
}
