package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/clinicware/comms-hub-go/internal/database"
	"github.com/clinicware/comms-hub-go/internal/debug"
	"github.com/clinicware/comms-hub-go/internal/model"
	"github.com/clinicware/comms-hub-go/internal/phone"
	"github.com/clinicware/comms-hub-go/internal/repository"
)

// TxRunner is the transactional entry point satisfied by *database.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// webhookEnvelope is the Cloud-API style event wrapper. Only text messages
// on the "messages" field are ingested; everything else is skipped.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string       `json:"field"`
			Value webhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookValue struct {
	Metadata struct {
		PhoneNumberID      string `json:"phone_number_id"`
		DisplayPhoneNumber string `json:"display_phone_number"`
	} `json:"metadata"`
	Messages []struct {
		From      string `json:"from"`
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
}

// IngestService turns raw webhook deliveries into conversation and message
// rows. It never propagates failures to its caller: the webhook boundary
// always acknowledges, and redelivery plus the dedupe constraint make
// ingestion eventually consistent.
type IngestService struct {
	capture   *debug.Capture
	db        TxRunner
	integRepo repository.IntegrationRepository
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
}

func NewIngestService(
	capture *debug.Capture,
	db TxRunner,
	integRepo repository.IntegrationRepository,
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
) *IngestService {
	return &IngestService{
		capture:   capture,
		db:        db,
		integRepo: integRepo,
		convRepo:  convRepo,
		msgRepo:   msgRepo,
	}
}

// Ingest processes one raw webhook delivery. All failures from parsing
// onward are logged and absorbed.
func (s *IngestService) Ingest(ctx context.Context, raw []byte) {
	s.capture.Store(raw)

	var envelope webhookEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		log.Warn().Err(err).Msg("ingest: malformed webhook payload")
		return
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			s.ingestValue(ctx, change.Value)
		}
	}
}

func (s *IngestService) ingestValue(ctx context.Context, value webhookValue) {
	phoneNumberID := value.Metadata.PhoneNumberID
	if phoneNumberID == "" {
		log.Warn().Msg("ingest: event without phone number id")
		return
	}

	integ, err := s.integRepo.FindByProviderAccountID(ctx, model.ProviderWhatsApp, phoneNumberID)
	if err != nil {
		log.Error().Err(err).Str("phoneNumberId", phoneNumberID).Msg("ingest: integration lookup failed")
		return
	}
	if integ == nil {
		log.Warn().Str("phoneNumberId", phoneNumberID).Msg("ingest: no integration for phone number id")
		return
	}

	scope, err := repository.ForClinic(integ.ClinicID)
	if err != nil {
		log.Error().Err(err).Msg("ingest: integration row without clinic id")
		return
	}

	for _, msg := range value.Messages {
		if msg.Type != "" && msg.Type != "text" {
			log.Debug().Str("type", msg.Type).Msg("ingest: skipping non-text message")
			continue
		}
		s.ingestMessage(ctx, scope, msg.From, msg.Text.Body, msg.ID, msg.Timestamp)
	}
}

// ingestMessage appends one inbound message. The conversation upsert, the
// message insert and the last_inbound_at bump run in a single transaction:
// a partially ingested message would otherwise leave the window state out of
// step with the thread until redelivery.
func (s *IngestService) ingestMessage(ctx context.Context, scope repository.Scope, from, body, providerMessageID, rawTimestamp string) {
	canonical := phone.Normalize(from)
	if canonical == "" {
		log.Warn().Str("clinicId", scope.ClinicID()).Msg("ingest: message without usable sender phone")
		return
	}

	var convID string
	var created bool
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		convRepo := s.convRepo.WithTx(tx)
		msgRepo := s.msgRepo.WithTx(tx)

		conv, err := convRepo.FindOrCreate(ctx, scope, canonical)
		if err != nil {
			return fmt.Errorf("find-or-create conversation: %w", err)
		}
		convID = conv.ID

		var pmid *string
		if providerMessageID != "" {
			pmid = &providerMessageID
		}

		_, created, err = msgRepo.InsertInbound(ctx, scope, model.CreateMessageParams{
			ConversationID:    conv.ID,
			Direction:         model.DirectionInbound,
			Body:              body,
			ProviderMessageID: pmid,
			Timestamp:         parseEventTimestamp(rawTimestamp),
		})
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if !created {
			return nil
		}

		return convRepo.MarkInbound(ctx, scope, conv.ID, time.Now())
	})
	if err != nil {
		log.Error().Err(err).Str("clinicId", scope.ClinicID()).Msg("ingest: message append failed")
		return
	}
	if !created {
		log.Debug().
			Str("conversationId", convID).
			Str("providerMessageId", providerMessageID).
			Msg("ingest: duplicate delivery skipped")
		return
	}

	log.Info().
		Str("clinicId", scope.ClinicID()).
		Str("conversationId", convID).
		Str("providerMessageId", providerMessageID).
		Msg("inbound message ingested")
}

// parseEventTimestamp reads the provider's unix-seconds timestamp, falling
// back to the receipt time.
func parseEventTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Now()
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(secs, 0)
}
