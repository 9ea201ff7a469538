package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"moff.io/moff-wallet/internal/cache"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

type QueueMessageHandler func(*types.Message) (deleteMsg bool, err error)

func (s *Clients) NewSQSWorker(ctx context.Context, queueURL string, handler QueueMessageHandler) {
	go s.blockingConsumeSQSMessages(ctx, queueURL, handler)
}

// DeepLinkHandler feeds each message body, a wallet connect uri, to handle. Rejected uris are deleted as well, a
// retry would be rejected again.
func DeepLinkHandler(handle func(ctx context.Context, uri string) bool) QueueMessageHandler {
	return func(msg *types.Message) (bool, error) {
		if msg.Body == nil {
			return true, nil
		}
		uri := strings.TrimSpace(*msg.Body)
		if !handle(context.Background(), uri) {
			log.Warnf("deep link %v rejected", aws.ToString(msg.MessageId))
		}
		return true, nil
	}
}

func (s *Clients) blockingConsumeSQSMessages(ctx context.Context, queueURL string, handler QueueMessageHandler) {
	idx := strings.LastIndex(queueURL, "/")
	queueName := queueURL[idx+1:]
	log.Infof("Blocking consume messages from queue %v...", queueName)
	defer log.Infof("Stopped to consume messages from queue %v...", queueName)
	for {
		msg, err := s.GetSingleMessageFromSQS(ctx, queueURL)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Error(err)
			continue
		}
		if msg == nil {
			continue
		}
		// 尝试添加消息去重缓存，添加成功则表示新消息，否则按历史消息处理，直接从队列删除该消息
		cacheKey := fmt.Sprintf("%v_deduplication:%v", queueName, *msg.MessageId)
		set, err := cache.Deduplicate(ctx, cacheKey, time.Hour*24*3)
		if err != nil {
			log.Error(err)
			continue
		}
		if !set {
			// 默认当前是重复消息
			if err := s.DeleteSingleMessageFromSQS(ctx, queueURL, *msg.ReceiptHandle); err != nil {
				log.Error(err)
			}
			continue
		}

		// 处理消息
		deleteMsg, err := handler(msg)
		if err != nil {
			log.Error(err)
			if err := cache.Release(ctx, cacheKey); err != nil {
				log.Error(err)
			}
			continue
		}
		if deleteMsg {
			// 删除消息
			if err := s.DeleteSingleMessageFromSQS(ctx, queueURL, *msg.ReceiptHandle); err != nil {
				log.Error(err)
			}
		} else {
			// 移除消息去重
			if err := cache.Release(ctx, cacheKey); err != nil {
				log.Error(err)
			}
		}
	}
}

func (s *Clients) GetSingleMessageFromSQS(ctx context.Context, queueUrl string) (*types.Message, error) {
	output, err := s.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueUrl),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return nil, errors.WrapfAndReport(err, "query sqs message from %s", queueUrl)
	}
	if len(output.Messages) == 0 {
		return nil, nil
	}
	return &output.Messages[0], nil
}

func (s *Clients) DeleteSingleMessageFromSQS(ctx context.Context, queueUrl, receiptHandle string) error {
	_, err := s.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueUrl),
		ReceiptHandle: aws.String(receiptHandle),
	})
	return errors.WrapfAndReport(err, "delete sqs message from %s", queueUrl)
}
