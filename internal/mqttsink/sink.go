// Package mqttsink publishes committed observations and asset changes
// to an MQTT broker, one retained message per dataitem or asset. It is
// an optional side channel next to the HTTP surface.
package mqttsink

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/snarg/mtcagent/internal/store"
)

type Sink struct {
	conn        mqtt.Client
	topicPrefix string
	connected   atomic.Bool
	log         zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string // default "mtconnect"
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Sink, error) {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "mtconnect"
	}
	s := &Sink{
		topicPrefix: opts.TopicPrefix,
		log:         opts.Log.With().Str("component", "mqttsink").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	s.conn = mqtt.NewClient(clientOpts)
	token := s.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) onConnect(mqtt.Client) {
	s.connected.Store(true)
	s.log.Info().Msg("mqtt connected")
}

func (s *Sink) onConnectionLost(_ mqtt.Client, err error) {
	s.connected.Store(false)
	s.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (s *Sink) IsConnected() bool {
	return s.connected.Load()
}

func (s *Sink) Close() {
	s.log.Info().Msg("disconnecting mqtt sink")
	s.conn.Disconnect(1000)
}

// observationPayload is the JSON shape for observation topics.
type observationPayload struct {
	Sequence  int64  `json:"sequence"`
	Timestamp string `json:"timestamp"`
	DataItem  string `json:"dataItemId"`
	Type      string `json:"type"`
	Category  string `json:"category"`
	Value     string `json:"value"`
}

// assetPayload is the JSON shape for asset topics.
type assetPayload struct {
	AssetID   string `json:"assetId"`
	AssetType string `json:"assetType"`
	Timestamp string `json:"timestamp"`
	Removed   bool   `json:"removed,omitempty"`
	Body      string `json:"body"`
}

// PublishObservation sends one observation to
// <prefix>/<device>/observations/<dataItemId>, retained. Called on the
// ingest sequencer goroutine; publishes are fire-and-forget so a slow
// broker never stalls ingest.
func (s *Sink) PublishObservation(deviceUUID string, obs store.Observation) {
	payload, err := json.Marshal(observationPayload{
		Sequence:  obs.Sequence,
		Timestamp: obs.Time,
		DataItem:  obs.DataItemID,
		Type:      obs.Type,
		Category:  obs.Category,
		Value:     obs.Value.Text(),
	})
	if err != nil {
		return
	}
	s.conn.Publish(s.topicPrefix+"/"+deviceUUID+"/observations/"+obs.DataItemID, 0, true, payload)
}

// PublishAsset sends one asset record to
// <prefix>/<device>/assets/<assetId>, retained.
func (s *Sink) PublishAsset(deviceUUID string, asset *store.Asset) {
	payload, err := json.Marshal(assetPayload{
		AssetID:   asset.AssetID,
		AssetType: asset.AssetType,
		Timestamp: asset.Time,
		Removed:   asset.Removed,
		Body:      asset.Body(),
	})
	if err != nil {
		return
	}
	s.conn.Publish(s.topicPrefix+"/"+deviceUUID+"/assets/"+asset.AssetID, 0, true, payload)
}
