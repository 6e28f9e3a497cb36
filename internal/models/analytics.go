package models

type DailyVolume struct {
	Day      string `json:"day"`
	Messages int    `json:"messages"`
}

type DirectionCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type TopUser struct {
	Email string `json:"email"`
	Count int    `json:"count"`
}

type AnalyticsSummary struct {
	Users             int              `json:"users"`
	PhoneNumbers      int              `json:"phone_numbers"`
	TotalMessages     int              `json:"total_messages"`
	TotalSMSCredits   int              `json:"total_sms_credits"`
	TotalVoiceCredits int              `json:"total_voice_credits"`
	MonthlyMessages   int              `json:"monthly_messages"`
	ActiveUsers       int              `json:"active_users"`
	CreditsUsed       int              `json:"credits_used"`
	Daily             []DailyVolume    `json:"daily"`
	Directions        []DirectionCount `json:"directions"`
	TopUsers          []TopUser        `json:"top_users"`
}
