package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clinic-booking-chatbot/models"
)

// maxAppointments bounds how many appointments are loaded per user.
const maxAppointments = 50

type appointmentDocument struct {
	ID          interface{} `bson:"_id"`
	UserID      interface{} `bson:"user_id"`
	ServiceName string      `bson:"service_name"`
	ScheduledAt time.Time   `bson:"scheduled_at"`
	Status      string      `bson:"status"`
}

func (d appointmentDocument) summary() models.AppointmentSummary {
	return models.AppointmentSummary{
		ID:          idString(d.ID),
		UserID:      idString(d.UserID),
		ServiceName: d.ServiceName,
		ScheduledAt: d.ScheduledAt,
		Status:      d.Status,
	}
}

// AppointmentRepository reads appointment summaries from the booking store.
type AppointmentRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewAppointmentRepository(db *mongo.Database, timeout time.Duration) *AppointmentRepository {
	return &AppointmentRepository{
		coll:    db.Collection(AppointmentsCollection),
		timeout: timeout,
	}
}

// FetchAppointments returns the user's appointments, most recently
// scheduled first. Appointments without a date sort last.
func (r *AppointmentRepository) FetchAppointments(ctx context.Context, userID string) ([]models.AppointmentSummary, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	filter := bson.M{"user_id": bson.M{"$in": idCandidates(userID)}}
	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_at", Value: -1}}).
		SetLimit(maxAppointments)

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []appointmentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode appointments: %w", err)
	}

	summaries := make([]models.AppointmentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, doc.summary())
	}
	return summaries, nil
}
