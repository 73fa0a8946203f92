package claims

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 2 * time.Second

// ErrPublishTimeout is returned when the broker does not confirm a publish in time.
var ErrPublishTimeout = errors.New("publish not confirmed")

// Publisher publishes force-merge reports to MQTT.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
}

// NewPublisher creates a report publisher. An empty prefix uses
// DefaultPublishPrefix.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &Publisher{client: client, publishPrefix: prefix}
}

// ReportSummary is the retained digest of the most recent run.
type ReportSummary struct {
	World     string    `json:"world"`
	StartedAt time.Time `json:"startedAt"`
	Groups    int       `json:"groups"`
	Merged    int       `json:"merged"`
	Failed    int       `json:"failed"`
	Snapshot  string    `json:"snapshot,omitempty"`
}

// Summarize builds the summary of r.
func Summarize(r *Report) ReportSummary {
	return ReportSummary{
		World:     r.World,
		StartedAt: r.StartedAt,
		Groups:    len(r.Groups),
		Merged:    r.Merged(),
		Failed:    r.Failed(),
		Snapshot:  r.Snapshot,
	}
}

// PublishReport sends the full report to <prefix>/forcemerge/<world> and the
// summary, retained, to <prefix>/forcemerge/last.
func (p *Publisher) PublishReport(r *Report) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := p.publish(fmt.Sprintf("%s/forcemerge/%s", p.publishPrefix, r.World), 1, false, payload); err != nil {
		return err
	}

	summary, err := json.Marshal(Summarize(r))
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if err := p.publish(p.publishPrefix+"/forcemerge/last", 1, true, summary); err != nil {
		return err
	}

	log.Printf("[MQTT] published report for %s: %d merged, %d failed", r.World, r.Merged(), r.Failed())
	return nil
}

func (p *Publisher) publish(topic string, qos byte, retain bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}
