package cfg

type (
	App struct {
		Name    string
		Version string
	}

	GithubApi struct {
		AccessToken       string
		ApiUrl            string
		GraphqlUrl        string
		RequestsPerSecond int
		ThrottleDelay     int
		RateLimitResetMin int
	}

	Verifier struct {
		// Cache và quota
		CacheTtlMin        int
		QuotaPerHour       int
		QuotaPerHourToken  int
		QuotaPerHourSingle int

		// Chọn protocol cho batch
		BatchThreshold     int
		GraphqlChunkSize   int
		GraphqlConcurrency int

		// Fallback REST theo wave
		RestWaveSize      int
		RestWaveSizeToken int
		RestDelayMs       int
		RestDelayTokenMs  int

		// Engagement
		EngagementChunkSize   int
		EngagementConcurrency int

		// Control loop
		SubmitChunkSize  int
		SubmitDelayMs    int
		MaxHandles       int
		MaxHandlesSingle int

		// Backoff khi gặp quota exceeded từ phía GitHub
		BackoffBaseSec    int
		BackoffCapSec     int
		BackoffMaxRetries int
	}

	KafkaProducer struct {
		TopicVerification string
		TopicEngagement   string
	}

	KafkaConsumer struct {
		GroupId string
	}

	Kafka struct {
		Brokers  []string
		Producer KafkaProducer
		Consumer KafkaConsumer
	}

	Server struct {
		Port int
	}
)

type Config struct {
	App       App
	GithubApi GithubApi
	Verifier  Verifier
	Kafka     Kafka
	Server    Server
}
