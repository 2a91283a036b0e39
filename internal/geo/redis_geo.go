package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/plasma-match/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands. Donor metadata beyond
// the coordinate lives in a hash per donor, written by the status consumer.
type RedisGeo struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key, ctx: context.Background()}
}

func (r *RedisGeo) Upsert(d models.Donor) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{Longitude: d.Loc.Lng, Latitude: d.Loc.Lat, Name: d.ID}).Result()
	_ = r.client.HSet(r.ctx, metaKey(d.ID), map[string]interface{}{
		"blood_type":  d.BloodType,
		"available":   strconv.FormatBool(d.Available),
		"donations":   strconv.Itoa(d.SuccessfulDonations),
		"phone":       d.Phone,
		"last_active": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) Nearby(lat, lng, radiusKm float64, limit int) []models.Donor {
	res, err := r.client.GeoRadius(r.ctx, r.key, lng, lat, &redis.GeoRadiusQuery{Radius: radiusKm, Unit: "km", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC"}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Donor, 0, len(res))
	for _, g := range res {
		d := models.Donor{ID: g.Name}
		d.Loc.Lat = g.Latitude
		d.Loc.Lng = g.Longitude
		if m, err := r.client.HGetAll(r.ctx, metaKey(g.Name)).Result(); err == nil {
			d.BloodType = m["blood_type"]
			d.Phone = m["phone"]
			d.Available = m["available"] == "true"
			if v, ok := m["donations"]; ok {
				if n, err := strconv.Atoi(v); err == nil {
					d.SuccessfulDonations = n
				}
			}
			if v, ok := m["last_active"]; ok {
				if ts, err := time.Parse(time.RFC3339, v); err == nil {
					d.LastActive = ts
				}
			}
		}
		out = append(out, d)
	}
	return out
}

func metaKey(id string) string { return "donor:meta:" + id }
