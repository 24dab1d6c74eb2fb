package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/passportxyz/passport-claim/types"
)

// maxPatchItems is the DynamoDB TransactWriteItems item limit; a patch
// array is applied as one transaction, so it must fit.
const maxPatchItems = 100

// Stamp is one stored credential, keyed by the holder address and the
// provider that issued it. The credential body is kept as canonical
// JSON rather than exploded into attributes.
type Stamp struct {
	Address        string    `dynamodbav:"Address"`
	Provider       string    `dynamodbav:"Provider"`
	Credential     string    `dynamodbav:"Credential"`
	IssuanceDate   time.Time `dynamodbav:"IssuanceDate,unixtime"`
	ExpirationDate time.Time `dynamodbav:"ExpirationDate,unixtime"`
}

func (s *Stamp) DatabaseKey() map[string]dbtypes.AttributeValue {
	return map[string]dbtypes.AttributeValue{
		"Address":  &dbtypes.AttributeValueMemberS{Value: s.Address},
		"Provider": &dbtypes.AttributeValueMemberS{Value: s.Provider},
	}
}

// VerifiableCredential decodes the stored credential body.
func (s *Stamp) VerifiableCredential() (*types.VerifiableCredential, error) {
	var credential types.VerifiableCredential
	if err := json.Unmarshal([]byte(s.Credential), &credential); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &credential, nil
}

func newStamp(address string, patch types.StampPatch) (*Stamp, error) {
	body, err := json.Marshal(patch.Credential)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	stamp := &Stamp{
		Address:    address,
		Provider:   string(patch.Provider),
		Credential: string(body),
	}
	if t, err := time.Parse(time.RFC3339, patch.Credential.IssuanceDate); err == nil {
		stamp.IssuanceDate = t
	}
	if t, err := time.Parse(time.RFC3339, patch.Credential.ExpirationDate); err == nil {
		stamp.ExpirationDate = t
	}
	return stamp, nil
}

type StampIndices struct {
	ByProvider string
}

type StampTable struct {
	db       DB
	tableARN string
	indices  StampIndices
}

func NewStampTable(db DB, tableARN string, indices StampIndices) *StampTable {
	return &StampTable{
		db:       db,
		tableARN: tableARN,
		indices:  indices,
	}
}

func (t *StampTable) TableARN() string {
	return t.tableARN
}

func (t *StampTable) Get(ctx context.Context, address string, provider types.ProviderID) (*Stamp, bool, error) {
	stamp := Stamp{Address: address, Provider: string(provider)}

	out, err := t.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &t.tableARN,
		Key:       stamp.DatabaseKey(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("GetItem: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	if err := attributevalue.UnmarshalMap(out.Item, &stamp); err != nil {
		return nil, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return &stamp, true, nil
}

// ListByAddress returns every stamp the address holds.
func (t *StampTable) ListByAddress(ctx context.Context, address string) ([]*Stamp, error) {
	out, err := t.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              &t.tableARN,
		KeyConditionExpression: ptr("Address = :address"),
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":address": &dbtypes.AttributeValueMemberS{Value: address},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}

	stamps := make([]*Stamp, 0, len(out.Items))
	for _, item := range out.Items {
		var stamp Stamp
		if err := attributevalue.UnmarshalMap(item, &stamp); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		stamps = append(stamps, &stamp)
	}
	return stamps, nil
}

// ListByProvider returns every stamp a provider has issued, via the
// provider index.
func (t *StampTable) ListByProvider(ctx context.Context, provider types.ProviderID) ([]*Stamp, error) {
	out, err := t.db.Query(ctx, &dynamodb.QueryInput{
		TableName:              &t.tableARN,
		IndexName:              &t.indices.ByProvider,
		KeyConditionExpression: ptr("Provider = :provider"),
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":provider": &dbtypes.AttributeValueMemberS{Value: string(provider)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}

	stamps := make([]*Stamp, 0, len(out.Items))
	for _, item := range out.Items {
		var stamp Stamp
		if err := attributevalue.UnmarshalMap(item, &stamp); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		stamps = append(stamps, &stamp)
	}
	return stamps, nil
}

// PatchStamps applies a patch array for one address as a single
// transaction: a patch carrying a credential upserts the stamp, a
// patch without one deletes it.
func (t *StampTable) PatchStamps(ctx context.Context, address string, patches []types.StampPatch) error {
	if len(patches) == 0 {
		return nil
	}
	if len(patches) > maxPatchItems {
		return fmt.Errorf("patch array of %d exceeds transaction limit of %d", len(patches), maxPatchItems)
	}

	items := make([]dbtypes.TransactWriteItem, 0, len(patches))
	for _, patch := range patches {
		if patch.Credential == nil {
			stamp := Stamp{Address: address, Provider: string(patch.Provider)}
			items = append(items, dbtypes.TransactWriteItem{
				Delete: &dbtypes.Delete{
					TableName: &t.tableARN,
					Key:       stamp.DatabaseKey(),
				},
			})
			continue
		}

		stamp, err := newStamp(address, patch)
		if err != nil {
			return err
		}
		av, err := attributevalue.MarshalMap(stamp)
		if err != nil {
			return fmt.Errorf("marshal input: %w", err)
		}
		items = append(items, dbtypes.TransactWriteItem{
			Put: &dbtypes.Put{
				TableName: &t.tableARN,
				Item:      av,
			},
		})
	}

	if _, err := t.db.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	}); err != nil {
		return fmt.Errorf("TransactWriteItems: %w", err)
	}
	return nil
}

// ForAddress binds the table to one holder address, yielding the store
// shape a claim run consumes.
func (t *StampTable) ForAddress(address string) *UserStamps {
	return &UserStamps{table: t, address: address}
}

type UserStamps struct {
	table   *StampTable
	address string
}

func (u *UserStamps) PatchStamps(ctx context.Context, patches []types.StampPatch) error {
	return u.table.PatchStamps(ctx, u.address, patches)
}

func ptr[T any](v T) *T {
	return &v
}
