package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (yl *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "github-verifier",
			Version: "0.0.1",
		},

		// GithubApi
		GithubApi: GithubApi{
			AccessToken:       "",
			ApiUrl:            "https://api.github.com",
			GraphqlUrl:        "https://api.github.com/graphql",
			RequestsPerSecond: 10,
			ThrottleDelay:     200,
			RateLimitResetMin: 5,
		},

		// Verifier
		Verifier: Verifier{
			CacheTtlMin:        5,
			QuotaPerHour:       60,
			QuotaPerHourToken:  5000,
			QuotaPerHourSingle: 30,

			BatchThreshold:     10,
			GraphqlChunkSize:   100,
			GraphqlConcurrency: 5,

			RestWaveSize:      5,
			RestWaveSizeToken: 20,
			RestDelayMs:       1000,
			RestDelayTokenMs:  300,

			EngagementChunkSize:   30,
			EngagementConcurrency: 5,

			SubmitChunkSize:  100,
			SubmitDelayMs:    300,
			MaxHandles:       5000,
			MaxHandlesSingle: 20,

			BackoffBaseSec:    30,
			BackoffCapSec:     300,
			BackoffMaxRetries: 4,
		},

		// Kafka
		Kafka: Kafka{
			Brokers: []string{},
			Producer: KafkaProducer{
				TopicVerification: "verifier.verification",
				TopicEngagement:   "verifier.engagement",
			},
			Consumer: KafkaConsumer{
				GroupId: "github-verifier",
			},
		},

		// Server
		Server: Server{
			Port: 8321,
		},
	}, nil
}
