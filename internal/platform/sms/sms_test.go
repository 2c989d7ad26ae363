package sms

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type fakePublisher struct{ got *sns.PublishInput }

func (f *fakePublisher) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.got = in
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSSenderPublishesTransactional(t *testing.T) {
	pub := &fakePublisher{}
	id, err := NewSNSSender(pub, "BayWheel").Send(context.Background(), "+819012345678", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("got id %q", id)
	}
	if aws.ToString(pub.got.PhoneNumber) != "+819012345678" {
		t.Fatalf("wrong phone %q", aws.ToString(pub.got.PhoneNumber))
	}
	if v := pub.got.MessageAttributes["AWS.SNS.SMS.SMSType"]; aws.ToString(v.StringValue) != "Transactional" {
		t.Fatal("sms should be transactional")
	}
	if _, ok := pub.got.MessageAttributes["AWS.SNS.SMS.SenderID"]; !ok {
		t.Fatal("sender id attribute missing")
	}
}

func TestSNSSenderRejectsEmptyPhone(t *testing.T) {
	if _, err := NewSNSSender(&fakePublisher{}, "").Send(context.Background(), " ", "x"); err == nil {
		t.Fatal("expected error")
	}
}
