package aws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"moff.io/wallet-verify/internal/verify"
	"moff.io/wallet-verify/pkg/errors"
)

type fakeSSM struct {
	params map[string]string
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	v, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	if !in.WithDecryption {
		return nil, errors.New("parameter must be decrypted")
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(v)}}, nil
}

type fakeSQS struct {
	mu       sync.Mutex
	failures int
	calls    int
	bodies   []string
	sent     chan struct{}
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("throttled")
	}
	f.bodies = append(f.bodies, aws.ToString(in.MessageBody))
	if f.sent != nil {
		f.sent <- struct{}{}
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestGetParameterFromSSM(t *testing.T) {
	c := &Clients{ssmClient: &fakeSSM{params: map[string]string{"/verify/bot-token": "secret"}}}

	v, err := c.GetParameterFromSSM(context.Background(), "/verify/bot-token")
	require.NoError(t, err)
	assert.Equal(t, "secret", v)

	_, err = c.GetParameterFromSSM(context.Background(), "/missing")
	assert.Error(t, err)
}

func TestMultiTrySendMessageToSQS(t *testing.T) {
	q := &fakeSQS{failures: 2}
	c := &Clients{sqsClient: q}
	require.NoError(t, c.MultiTrySendMessageToSQS(context.Background(), "queue", "hello", 3))
	assert.Equal(t, 3, q.calls)
	assert.Equal(t, []string{"hello"}, q.bodies)

	q = &fakeSQS{failures: 5}
	c = &Clients{sqsClient: q}
	assert.Error(t, c.MultiTrySendMessageToSQS(context.Background(), "queue", "hello", 3))
	assert.Equal(t, 3, q.calls)
}

func TestWalletVerifiedQueueHook(t *testing.T) {
	q := &fakeSQS{sent: make(chan struct{}, 1)}
	hook := NewWalletVerifiedQueueHook(&Clients{sqsClient: q}, "queue")
	hook(context.Background(), verify.Submission{UserID: "42", DiscordID: "9001", Wallet: "0xabc", Signature: "0x1"}, "done")

	select {
	case <-q.sent:
	case <-time.After(time.Second):
		t.Fatal("event not sent")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	require.Len(t, q.bodies, 1)
	body := q.bodies[0]
	assert.Equal(t, "9001", gjson.Get(body, "discord_id").String())
	assert.Equal(t, "0xabc", gjson.Get(body, "wallet").String())
	assert.Equal(t, "done", gjson.Get(body, "message").String())
	assert.False(t, gjson.Get(body, "signature").Exists())
}

func TestSendMessageToSQS(t *testing.T) {
	q := &fakeSQS{failures: 1}
	c := &Clients{sqsClient: q}
	assert.Error(t, c.SendMessageToSQS(context.Background(), "queue", "a"))
	assert.NoError(t, c.SendMessageToSQS(context.Background(), "queue", "b"))
	assert.Equal(t, []string{"b"}, q.bodies)
}
