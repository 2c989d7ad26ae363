// Package archive moves approved guests whose stay is over out of the
// registry and into monthly CSV files in S3.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/diagnosis/baywheel-hotline/internal/domain"
	"github.com/diagnosis/baywheel-hotline/internal/repo/dynamo"
	"github.com/diagnosis/baywheel-hotline/pkg/logger"
	"github.com/diagnosis/baywheel-hotline/pkg/metrics"
)

const fileName = "expired-guests.csv"

// ObjectStore is the subset of the S3 client the archiver uses.
type ObjectStore interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Result struct {
	Archived int      `json:"archived"`
	Skipped  int      `json:"skipped"`
	Deleted  int      `json:"deleted"`
	Objects  []string `json:"objects"`
}

type Archiver struct {
	repo   dynamo.GuestRepo
	store  ObjectStore
	bucket string
	prefix string
	now    func() time.Time
}

func NewArchiver(repo dynamo.GuestRepo, store ObjectStore, bucket, prefix string) *Archiver {
	if prefix == "" {
		prefix = "backups"
	}
	return &Archiver{repo: repo, store: store, bucket: bucket, prefix: prefix, now: time.Now}
}

func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// ObjectKey is the S3 key holding guests who checked in during month
// (YYYY-MM).
func (a *Archiver) ObjectKey(month string) string {
	return path.Join(a.prefix, month, fileName)
}

// Run archives approved guests whose session expired strictly before now.
// Guests are deleted only after every month file has been written; a guest
// with no usable check-in date stays in the registry.
func (a *Archiver) Run(ctx context.Context) (*Result, error) {
	cutoff := a.now().Unix() - 1
	expired, err := a.repo.QueryByStatus(ctx, domain.StatusApproved, &cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired approved guests: %w", err)
	}

	res := &Result{}
	if len(expired) == 0 {
		logger.InfoContext(ctx, "No expired guests to archive")
		return res, nil
	}

	byMonth := make(map[string][]domain.GuestRecord)
	for _, g := range expired {
		month := checkInMonth(g.CheckInDate)
		if month == "" {
			logger.WarnContext(ctx, "Guest has no usable check-in date, leaving in registry",
				"room", g.RoomNumber, "guest_id", g.GuestID, "check_in", g.CheckInDate)
			res.Skipped++
			continue
		}
		byMonth[month] = append(byMonth[month], g)
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	var keys []domain.GuestKey
	for _, month := range months {
		guests := byMonth[month]
		key := a.ObjectKey(month)
		if err := a.appendMonth(ctx, key, guests); err != nil {
			return res, fmt.Errorf("failed to archive %s: %w", month, err)
		}
		res.Objects = append(res.Objects, key)
		res.Archived += len(guests)
		for i := range guests {
			keys = append(keys, guests[i].Key())
		}
		logger.InfoContext(ctx, "Archived guests", "object", key, "count", len(guests))
	}

	deleted, err := a.repo.BatchDelete(ctx, keys)
	res.Deleted = deleted
	metrics.GuestsDeleted.WithLabelValues("archive").Add(float64(deleted))
	if err != nil {
		return res, fmt.Errorf("archived to %v but failed to delete guests: %w", res.Objects, err)
	}
	return res, nil
}

func (a *Archiver) appendMonth(ctx context.Context, key string, guests []domain.GuestRecord) error {
	existing, err := a.download(ctx, key)
	if err != nil {
		return err
	}

	fresh := make([][]string, 0, len(guests))
	for i := range guests {
		fresh = append(fresh, toRow(&guests[i]))
	}
	body, err := encodeRows(mergeRows(existing, fresh))
	if err != nil {
		return err
	}

	_, err = a.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// download returns the rows already archived under key; a missing object is
// an empty archive.
func (a *Archiver) download(ctx context.Context, key string) ([][]string, error) {
	out, err := a.store.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return parseRows(data)
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || strings.EqualFold(apiErr.ErrorCode(), "NotFound"))
}

// checkInMonth returns YYYY-MM for a YYYY-MM-DD date, or "".
func checkInMonth(date string) string {
	if len(date) < 7 {
		return ""
	}
	if _, err := time.Parse("2006-01", date[:7]); err != nil {
		return ""
	}
	return date[:7]
}
