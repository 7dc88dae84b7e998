package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"moff.io/wallet-verify/internal/databus"
	"moff.io/wallet-verify/internal/verify"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

const sendMaxTry = 3

func (s *Clients) SendMessageToSQS(ctx context.Context, queueURL, message string) error {
	_, err := s.sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(message),
	})
	return errors.WrapfAndReport(err, "send sqs message to %s", queueURL)
}

func (s *Clients) MultiTrySendMessageToSQS(ctx context.Context, queueURL, message string, maxTry int) error {
	for i := 0; i < maxTry; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.SendMessageToSQS(ctx, queueURL, message); err != nil {
			log.Warnf("try %d:%v", i+1, err)
			continue
		}
		return nil
	}
	return errors.ErrorfAndReport("send sqs message to %s max try exceeded", queueURL)
}

// NewWalletVerifiedQueueHook sends a WalletVerified event to queueURL for
// every accepted submission. Sending runs in the background.
func NewWalletVerifiedQueueHook(s *Clients, queueURL string) verify.VerifiedHook {
	return func(_ context.Context, sub verify.Submission, message string) {
		e := &databus.WalletVerified{
			UserID:     sub.UserID,
			DiscordID:  sub.DiscordID,
			Wallet:     sub.Wallet,
			Message:    message,
			VerifiedAt: time.Now().UTC(),
		}
		body := e.Serialize()
		if body == nil {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.MultiTrySendMessageToSQS(ctx, queueURL, string(body), sendMaxTry); err != nil {
				log.Errorf("queue wallet verified event for %v:%v", sub.DiscordID, err)
			}
		}()
	}
}
