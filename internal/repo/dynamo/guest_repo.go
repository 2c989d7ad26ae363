package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
)

const (
	// BatchWriteItem accepts at most 25 requests.
	batchDeleteSize = 25
	// TransactWriteItems accepts 100 items; a move is a put plus a delete.
	movesPerTransaction = 50

	defaultOpTimeout = 5 * time.Second
)

var (
	ErrNotFound        = errors.New("guest record not found")
	ErrConditionFailed = errors.New("conditional update failed")
	ErrAlreadyExists   = errors.New("guest record already exists")
)

// API is the subset of the DynamoDB client the registry uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// GuestRepo is the guest registry.
type GuestRepo interface {
	// Get returns nil, nil when the record does not exist.
	Get(ctx context.Context, room, guestID string) (*domain.GuestRecord, error)
	QueryByRoom(ctx context.Context, room string) ([]domain.GuestRecord, error)
	QueryByBooking(ctx context.Context, bookingID string) ([]domain.GuestRecord, error)
	// QueryByStatus lists every record in status; with maxExpiry set only
	// those whose sessionTokenExpiresAt <= *maxExpiry.
	QueryByStatus(ctx context.Context, status domain.ApprovalStatus, maxExpiry *int64) ([]domain.GuestRecord, error)
	Create(ctx context.Context, rec *domain.GuestRecord) error
	Update(ctx context.Context, key domain.GuestKey, upd GuestUpdate) error
	// BatchDelete returns how many records were deleted. Failing chunks are
	// logged and skipped.
	BatchDelete(ctx context.Context, keys []domain.GuestKey) (int, error)
	Move(ctx context.Context, moves []Move) error
}

// GuestUpdate is a partial update. Nil fields are left untouched.
type GuestUpdate struct {
	Status                *domain.ApprovalStatus
	SessionTokenExpiresAt *int64
	RemovePendingTTL      bool
	// ExpectStatus makes the update a compare-and-set on approvalStatus.
	ExpectStatus domain.ApprovalStatus
}

// Move re-keys a record into another room: To is written and From deleted in
// the same transaction.
type Move struct {
	From domain.GuestKey
	To   domain.GuestRecord
}

type TableConfig struct {
	TableName          string
	BookingIndex       string
	StatusExpiresIndex string
	OpTimeout          time.Duration
}

type GuestRepoImpl struct {
	client API
	cfg    TableConfig
	now    func() time.Time
}

func NewGuestRepo(client API, cfg TableConfig) *GuestRepoImpl {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	return &GuestRepoImpl{client: client, cfg: cfg, now: time.Now}
}

func guestKey(room, guestID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"roomNumber": &types.AttributeValueMemberS{Value: room},
		"guestId":    &types.AttributeValueMemberS{Value: guestID},
	}
}

func (r *GuestRepoImpl) Get(ctx context.Context, room, guestID string) (*domain.GuestRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.cfg.TableName),
		Key:            guestKey(room, guestID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get guest %s/%s: %w", room, guestID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var rec domain.GuestRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("decode guest %s/%s: %w", room, guestID, err)
	}
	return &rec, nil
}

func (r *GuestRepoImpl) QueryByRoom(ctx context.Context, room string) ([]domain.GuestRecord, error) {
	keyCond := expression.Key("roomNumber").Equal(expression.Value(room))
	return r.query(ctx, "", keyCond)
}

func (r *GuestRepoImpl) QueryByBooking(ctx context.Context, bookingID string) ([]domain.GuestRecord, error) {
	keyCond := expression.Key("bookingId").Equal(expression.Value(bookingID))
	return r.query(ctx, r.cfg.BookingIndex, keyCond)
}

func (r *GuestRepoImpl) QueryByStatus(ctx context.Context, status domain.ApprovalStatus, maxExpiry *int64) ([]domain.GuestRecord, error) {
	keyCond := expression.Key("approvalStatus").Equal(expression.Value(string(status)))
	if maxExpiry != nil {
		keyCond = keyCond.And(expression.Key("sessionTokenExpiresAt").LessThanEqual(expression.Value(*maxExpiry)))
	}
	return r.query(ctx, r.cfg.StatusExpiresIndex, keyCond)
}

// query walks every page of a key-condition query.
func (r *GuestRepoImpl) query(ctx context.Context, index string, keyCond expression.KeyConditionBuilder) ([]domain.GuestRecord, error) {
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.cfg.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if index != "" {
		input.IndexName = aws.String(index)
	}

	var records []domain.GuestRecord
	pages := dynamodb.NewQueryPaginator(r.client, input)
	for pages.HasMorePages() {
		pageCtx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
		out, err := pages.NextPage(pageCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", indexLabel(index), err)
		}

		var page []domain.GuestRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("decode query page: %w", err)
		}
		records = append(records, page...)
	}
	return records, nil
}

func indexLabel(index string) string {
	if index == "" {
		return "table"
	}
	return index
}

func (r *GuestRepoImpl) Create(ctx context.Context, rec *domain.GuestRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("encode guest: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("guestId"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build condition: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.cfg.TableName),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put guest %s: %w", rec.Key(), err)
	}
	return nil
}

func (r *GuestRepoImpl) Update(ctx context.Context, key domain.GuestKey, upd GuestUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	update := expression.Set(expression.Name("updatedAt"), expression.Value(domain.FormatTimestamp(r.now())))
	if upd.Status != nil {
		update = update.Set(expression.Name("approvalStatus"), expression.Value(string(*upd.Status)))
	}
	if upd.SessionTokenExpiresAt != nil {
		update = update.Set(expression.Name("sessionTokenExpiresAt"), expression.Value(*upd.SessionTokenExpiresAt))
	}
	if upd.RemovePendingTTL {
		update = update.Remove(expression.Name("pendingVerificationTtl"))
	}

	cond := expression.AttributeExists(expression.Name("guestId"))
	if upd.ExpectStatus != "" {
		cond = cond.And(expression.Name("approvalStatus").Equal(expression.Value(string(upd.ExpectStatus))))
	}

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.cfg.TableName),
		Key:                       guestKey(key.RoomNumber, key.GuestID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return fmt.Errorf("update guest %s: %w", key, ErrConditionFailed)
		}
		return fmt.Errorf("update guest %s: %w", key, err)
	}
	return nil
}

func (r *GuestRepoImpl) BatchDelete(ctx context.Context, keys []domain.GuestKey) (int, error) {
	deleted := 0
	var failedChunks int

	for start := 0; start < len(keys); start += batchDeleteSize {
		end := start + batchDeleteSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		requests := make([]types.WriteRequest, 0, len(chunk))
		for _, k := range chunk {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: guestKey(k.RoomNumber, k.GuestID)},
			})
		}

		chunkCtx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
		out, err := r.client.BatchWriteItem(chunkCtx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.cfg.TableName: requests},
		})
		cancel()
		if err != nil {
			failedChunks++
			logger.ErrorContext(ctx, "Batch delete chunk failed",
				"offset", start, "size", len(chunk), "error_code", errorCode(err), "error", err)
			continue
		}

		unprocessed := len(out.UnprocessedItems[r.cfg.TableName])
		if unprocessed > 0 {
			logger.WarnContext(ctx, "Batch delete left unprocessed items",
				"offset", start, "unprocessed", unprocessed)
		}
		deleted += len(chunk) - unprocessed
	}

	if failedChunks > 0 && deleted == 0 && len(keys) > 0 {
		return 0, fmt.Errorf("batch delete: all %d chunks failed", failedChunks)
	}
	return deleted, nil
}

func (r *GuestRepoImpl) Move(ctx context.Context, moves []Move) error {
	for start := 0; start < len(moves); start += movesPerTransaction {
		end := start + movesPerTransaction
		if end > len(moves) {
			end = len(moves)
		}
		if err := r.moveBatch(ctx, moves[start:end]); err != nil {
			return fmt.Errorf("move batch at %d: %w", start, err)
		}
	}
	return nil
}

func (r *GuestRepoImpl) moveBatch(ctx context.Context, moves []Move) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.OpTimeout)
	defer cancel()

	items := make([]types.TransactWriteItem, 0, len(moves)*2)
	for i := range moves {
		m := moves[i]
		item, err := attributevalue.MarshalMap(&m.To)
		if err != nil {
			return fmt.Errorf("encode guest %s: %w", m.To.Key(), err)
		}
		items = append(items,
			types.TransactWriteItem{Put: &types.Put{
				TableName: aws.String(r.cfg.TableName),
				Item:      item,
			}},
			types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(r.cfg.TableName),
				Key:       guestKey(m.From.RoomNumber, m.From.GuestID),
			}},
		)
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	return err
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// errorCode extracts the service error code for logs.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
