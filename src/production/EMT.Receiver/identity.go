package emtreceiver

import (
	"fmt"
	"regexp"
)

// IdentityScheme maps between device identifiers and the MQTT topics the two
// deployment variants use. The chip scheme serves energy meters, the
// generator scheme serves field generators; the pipeline itself is identical.
type IdentityScheme interface {
	Name() string

	// Match extracts the device identifier from an inbound data topic.
	Match(topic string) (string, bool)

	DataTopic(id string) string
	AckTopic(id string) string
}

var (
	chipTopicPattern      = regexp.MustCompile(`^device/([a-zA-Z0-9]+)/data$`)
	generatorTopicPattern = regexp.MustCompile(`^generator/([A-Z0-9-]+)/data$`)
)

type ChipScheme struct{}

func (ChipScheme) Name() string { return "chip" }

func (ChipScheme) Match(topic string) (string, bool) {
	m := chipTopicPattern.FindStringSubmatch(topic)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (ChipScheme) DataTopic(id string) string { return fmt.Sprintf("device/%s/data", id) }
func (ChipScheme) AckTopic(id string) string  { return fmt.Sprintf("device/%s/ack", id) }

type GeneratorScheme struct{}

func (GeneratorScheme) Name() string { return "generator" }

func (GeneratorScheme) Match(topic string) (string, bool) {
	m := generatorTopicPattern.FindStringSubmatch(topic)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func (GeneratorScheme) DataTopic(id string) string { return fmt.Sprintf("generator/%s/data", id) }
func (GeneratorScheme) AckTopic(id string) string  { return fmt.Sprintf("generator/%s/ack", id) }

// SchemeByName resolves the configured identity scheme.
func SchemeByName(name string) (IdentityScheme, error) {
	switch name {
	case "chip":
		return ChipScheme{}, nil
	case "generator":
		return GeneratorScheme{}, nil
	default:
		return nil, fmt.Errorf("unknown identity scheme %q", name)
	}
}
