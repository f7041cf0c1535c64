package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/simonpricept/client-billing/internal/core/domain"
	"github.com/simonpricept/client-billing/internal/core/ports"
)

const collectionClients = "clients"

// ClientRepository persists clients in MongoDB. It is the only component
// with write access to the clients collection; the status predicate in
// UpdateStatusIf is what makes concurrent lifecycle writes safe.
type ClientRepository struct {
	col *mongo.Collection
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{col: db.Collection(collectionClients)}
}

// clientDoc is the storage shape. Price is stored as a decimal string so it
// round-trips exactly; float drift in money fields is not acceptable.
type clientDoc struct {
	Email                 string                  `bson:"email"`
	Name                  string                  `bson:"name"`
	Telephone             string                  `bson:"telephone,omitempty"`
	Price                 string                  `bson:"price"`
	BillingDay            int                     `bson:"billing_day"`
	Prorate               bool                    `bson:"prorate"`
	Status                string                  `bson:"status"`
	GatewayCustomerID     string                  `bson:"gateway_customer_id,omitempty"`
	GatewaySubscriptionID string                  `bson:"gateway_subscription_id,omitempty"`
	CancelAtPeriodEnd     bool                    `bson:"cancel_at_period_end"`
	SubscriptionEndsAt    *time.Time              `bson:"subscription_ends_at,omitempty"`
	Address               domain.Address          `bson:"address"`
	EmergencyContact      domain.EmergencyContact `bson:"emergency_contact"`
	InviteSentAt          *time.Time              `bson:"invite_sent_at,omitempty"`
	ImportedAt            *time.Time              `bson:"imported_at,omitempty"`
	CreatedAt             time.Time               `bson:"created_at"`
	UpdatedAt             time.Time               `bson:"updated_at"`
}

func toDoc(c *domain.Client) clientDoc {
	return clientDoc{
		Email:                 c.Email,
		Name:                  c.Name,
		Telephone:             c.Telephone,
		Price:                 c.Price.String(),
		BillingDay:            c.BillingDay,
		Prorate:               c.Prorate,
		Status:                string(c.Status),
		GatewayCustomerID:     c.GatewayCustomerID,
		GatewaySubscriptionID: c.GatewaySubscriptionID,
		CancelAtPeriodEnd:     c.CancelAtPeriodEnd,
		SubscriptionEndsAt:    c.SubscriptionEndsAt,
		Address:               c.Address,
		EmergencyContact:      c.EmergencyContact,
		InviteSentAt:          c.InviteSentAt,
		ImportedAt:            c.ImportedAt,
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

func fromDoc(d clientDoc) (*domain.Client, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return nil, fmt.Errorf("decode price %q: %w", d.Price, err)
	}
	return &domain.Client{
		Email:                 d.Email,
		Name:                  d.Name,
		Telephone:             d.Telephone,
		Price:                 price,
		BillingDay:            d.BillingDay,
		Prorate:               d.Prorate,
		Status:                domain.Status(d.Status),
		GatewayCustomerID:     d.GatewayCustomerID,
		GatewaySubscriptionID: d.GatewaySubscriptionID,
		CancelAtPeriodEnd:     d.CancelAtPeriodEnd,
		SubscriptionEndsAt:    d.SubscriptionEndsAt,
		Address:               d.Address,
		EmergencyContact:      d.EmergencyContact,
		InviteSentAt:          d.InviteSentAt,
		ImportedAt:            d.ImportedAt,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}, nil
}

func (r *ClientRepository) FindByEmail(ctx context.Context, email string) (*domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var d clientDoc
	if err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClientNotFound
		}
		return nil, err
	}
	return fromDoc(d)
}

func (r *ClientRepository) FindByCustomerID(ctx context.Context, customerID string) (*domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var d clientDoc
	if err := r.col.FindOne(ctx, bson.M{"gateway_customer_id": customerID}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClientNotFound
		}
		return nil, err
	}
	return fromDoc(d)
}

func (r *ClientRepository) Insert(ctx context.Context, c *domain.Client) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, toDoc(c)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrClientExists
		}
		return err
	}
	return nil
}

// Update persists non-status fields. Status and its companions are
// deliberately absent from the $set so this can never race a lifecycle write.
func (r *ClientRepository) Update(ctx context.Context, c *domain.Client) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{
		"name":              c.Name,
		"telephone":         c.Telephone,
		"price":             c.Price.String(),
		"billing_day":       c.BillingDay,
		"prorate":           c.Prorate,
		"address":           c.Address,
		"emergency_contact": c.EmergencyContact,
		"invite_sent_at":    c.InviteSentAt,
		"updated_at":        time.Now().UTC(),
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"email": c.Email}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

func (r *ClientRepository) SetCustomerID(ctx context.Context, email, customerID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"email": email},
		bson.M{"$set": bson.M{
			"gateway_customer_id": customerID,
			"updated_at":          time.Now().UTC(),
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

// UpdateStatusIf applies the update only when the current status matches the
// predicate, in a single conditional UpdateOne. MatchedCount == 0 with a
// live document means a concurrent writer got there first.
func (r *ClientRepository) UpdateStatusIf(ctx context.Context, email string, expected []domain.Status, update domain.StatusUpdate) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"email": email}
	if len(expected) > 0 {
		statuses := make([]string, 0, len(expected))
		for _, s := range expected {
			statuses = append(statuses, string(s))
		}
		filter["status"] = bson.M{"$in": statuses}
	}

	set := bson.M{
		"status":     string(update.Status),
		"updated_at": time.Now().UTC(),
	}
	if update.SubscriptionID != nil {
		set["gateway_subscription_id"] = *update.SubscriptionID
	}
	if update.CancelAtPeriodEnd != nil {
		set["cancel_at_period_end"] = *update.CancelAtPeriodEnd
	}
	if update.SubscriptionEndsAt != nil {
		set["subscription_ends_at"] = *update.SubscriptionEndsAt
	}

	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		// Distinguish "predicate lost the race" from "no such client".
		n, err := r.col.CountDocuments(ctx, bson.M{"email": email})
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, domain.ErrClientNotFound
		}
		return false, nil
	}
	return true, nil
}

func (r *ClientRepository) List(ctx context.Context, filter ports.ListClientsFilter) ([]*domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Search != "" {
		query["$or"] = bson.A{
			bson.M{"email": bson.M{"$regex": filter.Search, "$options": "i"}},
			bson.M{"name": bson.M{"$regex": filter.Search, "$options": "i"}},
		}
	}

	cursor, err := r.col.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domain.Client
	for cursor.Next(ctx) {
		var d clientDoc
		if err := cursor.Decode(&d); err != nil {
			return nil, err
		}
		c, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, cursor.Err()
}

func (r *ClientRepository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cursor, err := r.col.Aggregate(ctx, mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := make(map[domain.Status]int64)
	for cursor.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		counts[domain.Status(row.ID)] = row.Count
	}
	return counts, cursor.Err()
}

// EnsureIndexes creates necessary indexes on the clients collection. The
// unique email index is what turns a double invite into ErrClientExists.
func (r *ClientRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "gateway_customer_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
