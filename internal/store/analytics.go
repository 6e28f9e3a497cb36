package store

import (
	"context"
	"fmt"
	"time"

	"twoway-sms/internal/models"
)

const (
	analyticsWindow = 30 * 24 * time.Hour
	dailyWindowDays = 7
	topUsersLimit   = 5
)

func (p *Postgres) Summary(ctx context.Context, now time.Time) (*models.AnalyticsSummary, error) {
	now = now.UTC()
	since := now.Add(-analyticsWindow)
	s := &models.AnalyticsSummary{}

	err := p.db.QueryRow(ctx, `
        SELECT
            (SELECT count(*) FROM users WHERE role = 'user'),
            (SELECT count(*) FROM phone_numbers),
            (SELECT count(*) FROM messages),
            (SELECT COALESCE(sum(sms_credits), 0) FROM user_credits),
            (SELECT COALESCE(sum(voice_credits), 0) FROM user_credits),
            (SELECT count(*) FROM messages WHERE created_at >= $1),
            (SELECT count(DISTINCT c.user_id)
               FROM messages m JOIN conversations c ON c.id = m.conversation_id
              WHERE m.created_at >= $1),
            (SELECT COALESCE(sum(credits_used), 0) FROM usage_records WHERE created_at >= $1)
    `, since).Scan(
		&s.Users, &s.PhoneNumbers, &s.TotalMessages, &s.TotalSMSCredits, &s.TotalVoiceCredits,
		&s.MonthlyMessages, &s.ActiveUsers, &s.CreditsUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("analytics totals: %w", err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	firstDay := dayStart.AddDate(0, 0, -(dailyWindowDays - 1))
	counts := map[string]int{}
	rows, err := p.db.Query(ctx, `
        SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*)
        FROM messages
        WHERE created_at >= $1
        GROUP BY day
    `, firstDay)
	if err != nil {
		return nil, fmt.Errorf("analytics daily: %w", err)
	}
	for rows.Next() {
		var (
			day string
			n   int
		)
		if err := rows.Scan(&day, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan daily: %w", err)
		}
		counts[day] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.Daily = DailyBuckets(firstDay, dailyWindowDays, counts)

	directions := map[models.Direction]int{}
	rows, err = p.db.Query(ctx, `
        SELECT direction, count(*) FROM messages WHERE created_at >= $1 GROUP BY direction
    `, since)
	if err != nil {
		return nil, fmt.Errorf("analytics directions: %w", err)
	}
	for rows.Next() {
		var (
			d models.Direction
			n int
		)
		if err := rows.Scan(&d, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan direction: %w", err)
		}
		directions[d] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.Directions = []models.DirectionCount{
		{Name: "Outbound", Value: directions[models.DirectionOutbound]},
		{Name: "Inbound", Value: directions[models.DirectionInbound]},
	}

	rows, err = p.db.Query(ctx, `
        SELECT COALESCE(u.email, u.username, u.id::text) AS login, count(*) AS n
        FROM messages m
        JOIN conversations c ON c.id = m.conversation_id
        JOIN users u ON u.id = c.user_id
        WHERE m.created_at >= $1
        GROUP BY login
        ORDER BY n DESC, login
        LIMIT $2
    `, since, topUsersLimit)
	if err != nil {
		return nil, fmt.Errorf("analytics top users: %w", err)
	}
	defer rows.Close()
	s.TopUsers = []models.TopUser{}
	for rows.Next() {
		var t models.TopUser
		if err := rows.Scan(&t.Email, &t.Count); err != nil {
			return nil, fmt.Errorf("scan top user: %w", err)
		}
		s.TopUsers = append(s.TopUsers, t)
	}
	return s, rows.Err()
}

// DailyBuckets lays out days consecutive UTC days starting at first, taking
// counts keyed by YYYY-MM-DD and labelling each with its short weekday.
func DailyBuckets(first time.Time, days int, counts map[string]int) []models.DailyVolume {
	out := make([]models.DailyVolume, 0, days)
	for i := 0; i < days; i++ {
		d := first.AddDate(0, 0, i)
		out = append(out, models.DailyVolume{
			Day:      d.Format("Mon"),
			Messages: counts[d.Format("2006-01-02")],
		})
	}
	return out
}
