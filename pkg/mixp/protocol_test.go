package mixp

import "testing"

func TestValidateCommandEnvelope(t *testing.T) {
	cmd, err := NewCommand("mix.rebuild", RebuildBody{Source: "lastfm:alice"})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	if err := ValidateCommandEnvelope(cmd); err == nil {
		t.Fatalf("expected error before bookkeeping fields are set")
	}

	cmd.ID = "id"
	cmd.TS = 1
	cmd.From = "tester"
	if err := ValidateCommandEnvelope(cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCommandEnvelopeMissingFields(t *testing.T) {
	if err := ValidateCommandEnvelope(CommandEnvelope{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTopics(t *testing.T) {
	if got := TopicCommands(BaseTopic, "mix:follower:main"); got != "mixfollower/v1/node/mix:follower:main/cmd" {
		t.Fatalf("unexpected command topic %q", got)
	}
	if got := TopicPresence(BaseTopic, "n"); got != "mixfollower/v1/node/n/presence" {
		t.Fatalf("unexpected presence topic %q", got)
	}
	if got := TopicState(BaseTopic, "n"); got != "mixfollower/v1/node/n/state" {
		t.Fatalf("unexpected state topic %q", got)
	}
	if got := TopicReply(BaseTopic, "ctl-1"); got != "mixfollower/v1/reply/ctl-1" {
		t.Fatalf("unexpected reply topic %q", got)
	}
}
