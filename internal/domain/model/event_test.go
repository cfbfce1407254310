package model_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	model "github.com/okian/tally/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestEnvelope(t *testing.T) {
	convey.Convey("Given a score_created event", t, func() {
		e, err := model.NewEvent(model.EventScoreCreated, model.ScoreCreated{PlayerID: 1, TeamID: 2, Score: 10})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then it carries an id and a UTC timestamp", func() {
			convey.So(e.EventID, convey.ShouldNotBeEmpty)
			convey.So(e.OccurredAt.Location(), convey.ShouldEqual, time.UTC)
		})

		convey.Convey("When encoded", func() {
			body, err := model.Encode(e)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the wire form uses the canonical field names", func() {
				s := string(body)
				convey.So(s, convey.ShouldContainSubstring, `"event_type":"score_created"`)
				convey.So(s, convey.ShouldContainSubstring, `"player_id":1`)
				convey.So(s, convey.ShouldContainSubstring, `"team_id":2`)
				convey.So(s, convey.ShouldContainSubstring, `"score":10`)
			})

			convey.Convey("Then decoding yields the same payload and routing key", func() {
				back, err := model.Decode(body)
				convey.So(err, convey.ShouldBeNil)
				convey.So(back.EventID, convey.ShouldEqual, e.EventID)

				var p model.ScoreCreated
				convey.So(back.DecodeData(&p), convey.ShouldBeNil)
				convey.So(p, convey.ShouldResemble, model.ScoreCreated{PlayerID: 1, TeamID: 2, Score: 10})
				convey.So(back.RoutingKey(), convey.ShouldEqual, "2/1")
			})
		})
	})

	convey.Convey("Given bodies from other producers", t, func() {
		convey.Convey("When the envelope has no event_id", func() {
			e, err := model.Decode([]byte(`{"event_type":"player_created","data":{"player_id":4,"team_id":9}}`))

			convey.So(err, convey.ShouldBeNil)
			convey.So(e.EventID, convey.ShouldBeEmpty)
			convey.So(e.RoutingKey(), convey.ShouldEqual, "9/4")
		})

		convey.Convey("When the body is not JSON", func() {
			_, err := model.Decode([]byte("not json"))
			convey.So(errors.Is(err, model.ErrDecode), convey.ShouldBeTrue)
		})

		convey.Convey("When event_type is missing", func() {
			_, err := model.Decode([]byte(`{"data":{}}`))
			convey.So(errors.Is(err, model.ErrDecode), convey.ShouldBeTrue)
		})

		convey.Convey("When data does not match the payload type", func() {
			e, err := model.Decode([]byte(`{"event_type":"score_created","data":{"player_id":"x"}}`))
			convey.So(err, convey.ShouldBeNil)

			var p model.ScoreCreated
			convey.So(errors.Is(e.DecodeData(&p), model.ErrDecode), convey.ShouldBeTrue)
			convey.So(e.RoutingKey(), convey.ShouldEqual, "score_created")
		})
	})
}

func TestRatingUpdatedEvent(t *testing.T) {
	convey.Convey("RatingUpdatedEvent mirrors the rating", t, func() {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		e, err := model.RatingUpdatedEvent(model.Rating{PlayerID: 1, TeamID: 1, AverageScore: 8, TotalOfScores: 2, LastUpdated: now})
		convey.So(err, convey.ShouldBeNil)
		convey.So(e.EventType, convey.ShouldEqual, model.EventRatingUpdated)

		var p model.RatingUpdated
		convey.So(e.DecodeData(&p), convey.ShouldBeNil)
		convey.So(p.AverageScore, convey.ShouldEqual, 8)
		convey.So(p.TotalOfScores, convey.ShouldEqual, 2)
		convey.So(strings.Contains(string(e.Data), "2024-05-01T12:00:00Z"), convey.ShouldBeTrue)
	})
}

func TestValidateScore(t *testing.T) {
	convey.Convey("ValidateScore enforces the inclusive range", t, func() {
		convey.So(model.ValidateScore(model.MinScore), convey.ShouldBeNil)
		convey.So(model.ValidateScore(model.MaxScore), convey.ShouldBeNil)
		convey.So(errors.Is(model.ValidateScore(-1), model.ErrInvalidScore), convey.ShouldBeTrue)
		convey.So(errors.Is(model.ValidateScore(11), model.ErrInvalidScore), convey.ShouldBeTrue)
	})
}
