// Package stream reacts to guest registry changes delivered by the table's
// change stream.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

const (
	eventInsert = "INSERT"
	eventModify = "MODIFY"
)

type GuestSync interface {
	SyncFamilyExpiry(ctx context.Context, rec *domain.GuestRecord) error
	ApplyCheckoutChange(ctx context.Context, oldRec, newRec *domain.GuestRecord) error
}

type RecordAlerter interface {
	HandleRecord(ctx context.Context, eventID string, oldRec, newRec *domain.GuestRecord) error
}

type Consumer struct {
	guests GuestSync
	alerts RecordAlerter
}

// NewConsumer builds a stream consumer. alerts may be nil.
func NewConsumer(guests GuestSync, alerts RecordAlerter) *Consumer {
	return &Consumer{guests: guests, alerts: alerts}
}

// Handle processes a batch. Failed records are reported individually so only
// they are redelivered.
func (c *Consumer) Handle(ctx context.Context, ev events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for _, rec := range ev.Records {
		if err := c.handleRecord(ctx, rec); err != nil {
			logger.ErrorContext(ctx, "Stream record failed",
				"event_id", rec.EventID,
				"event_name", rec.EventName,
				"sequence", rec.Change.SequenceNumber,
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: rec.Change.SequenceNumber,
			})
		}
	}
	return resp, nil
}

func (c *Consumer) handleRecord(ctx context.Context, rec events.DynamoDBEventRecord) error {
	if rec.EventName != eventInsert && rec.EventName != eventModify {
		return nil
	}
	newRec, err := DecodeImage(rec.Change.NewImage)
	if err != nil {
		return fmt.Errorf("new image: %w", err)
	}
	if newRec == nil {
		return nil
	}
	oldRec, err := DecodeImage(rec.Change.OldImage)
	if err != nil {
		return fmt.Errorf("old image: %w", err)
	}
	ctx = context.WithValue(ctx, logger.GuestIDKey, newRec.GuestID)

	var errs []error
	switch rec.EventName {
	case eventInsert:
		if err := c.guests.SyncFamilyExpiry(ctx, newRec); err != nil {
			errs = append(errs, err)
		}
	case eventModify:
		if err := c.guests.ApplyCheckoutChange(ctx, oldRec, newRec); err != nil {
			errs = append(errs, err)
		}
	}
	if c.alerts != nil {
		if err := c.alerts.HandleRecord(ctx, rec.EventID, oldRec, newRec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DecodeImage reads a stream image into a guest record. An empty image
// yields nil.
func DecodeImage(img map[string]events.DynamoDBAttributeValue) (*domain.GuestRecord, error) {
	if len(img) == 0 {
		return nil, nil
	}
	item := make(map[string]types.AttributeValue, len(img))
	for k, v := range img {
		item[k] = toAttributeValue(v)
	}
	var rec domain.GuestRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func toAttributeValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, len(list))
		for i := range list {
			out[i] = toAttributeValue(list[i])
		}
		return &types.AttributeValueMemberL{Value: out}
	case events.DataTypeMap:
		m := v.Map()
		out := make(map[string]types.AttributeValue, len(m))
		for k, mv := range m {
			out[k] = toAttributeValue(mv)
		}
		return &types.AttributeValueMemberM{Value: out}
	default:
		return &types.AttributeValueMemberNULL{Value: true}
	}
}
