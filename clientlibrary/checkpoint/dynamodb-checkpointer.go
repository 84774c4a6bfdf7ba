/*
 * Copyright (c) 2021 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */

package checkpoint

import (
	"math"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/matryer/try"

	"github.com/vmware/vmware-go-ccl/clientlibrary/config"
	"github.com/vmware/vmware-go-ccl/logger"
)

const (
	// CheckpointNameKey is the hash key of the checkpoint table.
	CheckpointNameKey = "CheckpointName"

	// SequenceTokenKey holds the persisted sequence token.
	SequenceTokenKey = "SequenceToken"

	// WorkerIDKey records the worker that last wrote the checkpoint, for
	// operators only; the library never reads it back.
	WorkerIDKey = "WorkerID"

	// NumMaxRetries is the number of times a throttled write is retried.
	NumMaxRetries = 10
)

// DynamoCheckpointer implements Checkpointer with a single-item DynamoDB
// table. One item per checkpoint name; writes are plain overwrites since
// only one consumer may own a checkpoint location.
type DynamoCheckpointer struct {
	log            logger.Logger
	TableName      string
	checkpointName string
	workerID       string

	tableReadCapacity  int64
	tableWriteCapacity int64

	svc       dynamodbiface.DynamoDBAPI
	cclConfig *config.CouchClientLibConfiguration
	Retries   int
}

// NewDynamoCheckpointer creates a checkpointer storing tokens in the
// configured DynamoDB table, keyed by "<ApplicationName>/<DatabaseName>".
func NewDynamoCheckpointer(cclConfig *config.CouchClientLibConfiguration) *DynamoCheckpointer {
	return &DynamoCheckpointer{
		log:                cclConfig.Logger,
		TableName:          cclConfig.CheckpointTableName,
		checkpointName:     cclConfig.ApplicationName + "/" + cclConfig.DatabaseName,
		workerID:           cclConfig.WorkerID,
		tableReadCapacity:  int64(cclConfig.CheckpointTableReadCapacity),
		tableWriteCapacity: int64(cclConfig.CheckpointTableWriteCapacity),
		cclConfig:          cclConfig,
		Retries:            NumMaxRetries,
	}
}

// WithDynamoDB is used to provide a DynamoDB service for either a custom
// implementation or unit testing.
func (checkpointer *DynamoCheckpointer) WithDynamoDB(svc dynamodbiface.DynamoDBAPI) *DynamoCheckpointer {
	checkpointer.svc = svc
	return checkpointer
}

// Init creates the DynamoDB session and the checkpoint table when missing.
func (checkpointer *DynamoCheckpointer) Init() error {
	if checkpointer.svc == nil {
		checkpointer.log.Infof("Creating DynamoDB session")

		s, err := session.NewSession(&aws.Config{
			Region:      aws.String(checkpointer.cclConfig.RegionName),
			Endpoint:    aws.String(checkpointer.cclConfig.DynamoDBEndpoint),
			Credentials: checkpointer.cclConfig.DynamoDBCredentials,
			Retryer: client.DefaultRetryer{
				NumMaxRetries:    checkpointer.Retries,
				MinRetryDelay:    client.DefaultRetryerMinRetryDelay,
				MinThrottleDelay: client.DefaultRetryerMinThrottleDelay,
				MaxRetryDelay:    client.DefaultRetryerMaxRetryDelay,
				MaxThrottleDelay: client.DefaultRetryerMaxRetryDelay,
			},
		})
		if err != nil {
			// no need to move forward
			checkpointer.log.Fatalf("Failed in getting DynamoDB session for checkpointing: %+v", err)
		}
		checkpointer.svc = dynamodb.New(s)
	}

	if !checkpointer.doesTableExist() {
		return checkpointer.createTable()
	}
	return nil
}

// Load reads the persisted token. A missing item or attribute reads as "no
// checkpoint".
func (checkpointer *DynamoCheckpointer) Load() (string, error) {
	item, err := checkpointer.getItem()
	if err != nil {
		return "", err
	}

	token, ok := item[SequenceTokenKey]
	if !ok || token.S == nil {
		return "", nil
	}
	return *token.S, nil
}

// Save overwrites the persisted token, retrying throttled writes.
func (checkpointer *DynamoCheckpointer) Save(sequence string) error {
	item := map[string]*dynamodb.AttributeValue{
		CheckpointNameKey: {
			S: aws.String(checkpointer.checkpointName),
		},
		SequenceTokenKey: {
			S: aws.String(sequence),
		},
		WorkerIDKey: {
			S: aws.String(checkpointer.workerID),
		},
	}

	return try.Do(func(attempt int) (bool, error) {
		err := checkpointer.putItem(item)
		if awsErr, ok := err.(awserr.Error); ok {
			if awsErr.Code() == dynamodb.ErrCodeProvisionedThroughputExceededException &&
				attempt < checkpointer.Retries {
				checkpointer.log.Warnf("Checkpoint write throttled, attempt %d: %v", attempt, err)
				// Backoff time as recommended by https://docs.aws.amazon.com/general/latest/gr/api-retries.html
				time.Sleep(time.Duration(math.Exp2(float64(attempt))*100) * time.Millisecond)
				return true, err
			}
		}
		return false, err
	})
}

func (checkpointer *DynamoCheckpointer) doesTableExist() bool {
	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(checkpointer.TableName),
	}
	_, err := checkpointer.svc.DescribeTable(input)
	return err == nil
}

func (checkpointer *DynamoCheckpointer) createTable() error {
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String(CheckpointNameKey),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String(CheckpointNameKey),
				KeyType:       aws.String("HASH"),
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(checkpointer.tableReadCapacity),
			WriteCapacityUnits: aws.Int64(checkpointer.tableWriteCapacity),
		},
		TableName: aws.String(checkpointer.TableName),
	}
	_, err := checkpointer.svc.CreateTable(input)
	return err
}

func (checkpointer *DynamoCheckpointer) getItem() (map[string]*dynamodb.AttributeValue, error) {
	item, err := checkpointer.svc.GetItem(&dynamodb.GetItemInput{
		ConsistentRead: aws.Bool(true),
		TableName:      aws.String(checkpointer.TableName),
		Key: map[string]*dynamodb.AttributeValue{
			CheckpointNameKey: {
				S: aws.String(checkpointer.checkpointName),
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return item.Item, nil
}

func (checkpointer *DynamoCheckpointer) putItem(item map[string]*dynamodb.AttributeValue) error {
	_, err := checkpointer.svc.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(checkpointer.TableName),
		Item:      item,
	})
	return err
}
