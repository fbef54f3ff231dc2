package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	CORS         CORSConfig
	Log          LogConfig
	Tracing      TracingConfig
	Solver       SolverConfig
	Encoder      EncoderConfig
	Genetic      GeneticConfig
	Jobs         JobsConfig
	ProblemCache ProblemCacheConfig
	Progress     ProgressConfig
	Constraints  ConstraintsConfig
	Fixtures     FixturesConfig
	Access       AccessConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TracingConfig toggles OpenTelemetry span export.
type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	SampleRatio  float64
	OTLPEndpoint string
	OTLPInsecure bool
}

// SolverConfig bounds each call to the combinatorial solver.
type SolverConfig struct {
	Phase1TimeLimit   time.Duration
	Phase2TimeLimit   time.Duration
	Workers           int
	Phase2Parallelism int
}

// EncoderConfig carries rule parameters and constraint-count budgets.
type EncoderConfig struct {
	DefaultRuleBudget        int
	GlobalBudget             int
	MinGapSlots              int
	MaxExamsPerStudentDay    int
	StudentsPerInvigilator   int
	CapacityBufferPercent    int
	RequireInvigilators      bool
	MaxSplitRooms            int
	DailyBalanceWeight       int
	PreferredSlotWeight      int
	RoomWasteWeight          int
	InvigilatorBalanceWeight int
}

// GeneticConfig governs the refinement pass after the solver.
type GeneticConfig struct {
	Enabled        bool
	PopulationSize int
	Generations    int
	TournamentSize int
	CrossoverRate  float64
	MutationRate   float64
	ElitismRate    float64
	Seed           int64
}

// JobsConfig configures the background task runner.
type JobsConfig struct {
	Workers                int
	BufferSize             int
	MaxRetries             int
	RetryDelay             time.Duration
	MaxRetryDelay          time.Duration
	TaskTimeLimit          time.Duration
	SingleActivePerSession bool
}

// ProblemCacheConfig controls reuse of built problem instances per session.
type ProblemCacheConfig struct {
	TTL         time.Duration
	RedisMirror bool
}

// ProgressConfig controls cross-process progress fan-out.
type ProgressConfig struct {
	RedisFanout bool
	Channel     string
	BufferSize  int
	Heartbeat   time.Duration
}

// ConstraintsConfig points at an optional YAML constraint profile.
type ConstraintsConfig struct {
	ProfilePath string
}

// AccessConfig names the identity headers set by the upstream gateway and
// the roles allowed to mutate jobs and timetables. Empty EditorRoles disables
// the role check.
type AccessConfig struct {
	ActorHeader string
	RoleHeader  string
	EditorRoles []string
}

// FixturesConfig points at CSV fixtures used by offline runs.
type FixturesConfig struct {
	Dir string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Tracing = TracingConfig{
		Enabled:      v.GetBool("OTEL_ENABLED"),
		ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		SampleRatio:  clampRatio(v.GetFloat64("OTEL_SAMPLER_RATIO"), 0.1),
		OTLPEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure: v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
	}

	cfg.Solver = SolverConfig{
		Phase1TimeLimit:   parseDuration(v.GetString("SOLVER_PHASE1_TIME_LIMIT"), 2*time.Minute),
		Phase2TimeLimit:   parseDuration(v.GetString("SOLVER_PHASE2_TIME_LIMIT"), time.Minute),
		Workers:           positiveOr(v.GetInt("SOLVER_WORKERS"), 1),
		Phase2Parallelism: positiveOr(v.GetInt("SOLVER_PHASE2_PARALLELISM"), 2),
	}

	cfg.Encoder = EncoderConfig{
		DefaultRuleBudget:        positiveOr(v.GetInt("ENCODER_RULE_BUDGET"), 50000),
		GlobalBudget:             positiveOr(v.GetInt("ENCODER_GLOBAL_BUDGET"), 250000),
		MinGapSlots:              v.GetInt("ENCODER_MIN_GAP_SLOTS"),
		MaxExamsPerStudentDay:    v.GetInt("ENCODER_MAX_EXAMS_PER_STUDENT_DAY"),
		StudentsPerInvigilator:   positiveOr(v.GetInt("ENCODER_STUDENTS_PER_INVIGILATOR"), 50),
		CapacityBufferPercent:    v.GetInt("ENCODER_CAPACITY_BUFFER_PERCENT"),
		RequireInvigilators:      v.GetBool("ENCODER_REQUIRE_INVIGILATORS"),
		MaxSplitRooms:            positiveOr(v.GetInt("ENCODER_MAX_SPLIT_ROOMS"), 3),
		DailyBalanceWeight:       v.GetInt("ENCODER_DAILY_BALANCE_WEIGHT"),
		PreferredSlotWeight:      v.GetInt("ENCODER_PREFERRED_SLOT_WEIGHT"),
		RoomWasteWeight:          v.GetInt("ENCODER_ROOM_WASTE_WEIGHT"),
		InvigilatorBalanceWeight: v.GetInt("ENCODER_INVIGILATOR_BALANCE_WEIGHT"),
	}

	cfg.Genetic = GeneticConfig{
		Enabled:        v.GetBool("GA_ENABLED"),
		PopulationSize: positiveOr(v.GetInt("GA_POPULATION_SIZE"), 30),
		Generations:    positiveOr(v.GetInt("GA_GENERATIONS"), 50),
		TournamentSize: positiveOr(v.GetInt("GA_TOURNAMENT_SIZE"), 3),
		CrossoverRate:  clampRatio(v.GetFloat64("GA_CROSSOVER_RATE"), 0.8),
		MutationRate:   clampRatio(v.GetFloat64("GA_MUTATION_RATE"), 0.2),
		ElitismRate:    clampRatio(v.GetFloat64("GA_ELITISM_RATE"), 0.1),
		Seed:           v.GetInt64("GA_SEED"),
	}

	cfg.Jobs = JobsConfig{
		Workers:                positiveOr(v.GetInt("JOBS_WORKERS"), 1),
		BufferSize:             v.GetInt("JOBS_BUFFER_SIZE"),
		MaxRetries:             positiveOr(v.GetInt("JOBS_MAX_RETRIES"), 3),
		RetryDelay:             parseDuration(v.GetString("JOBS_RETRY_DELAY"), 2*time.Second),
		MaxRetryDelay:          parseDuration(v.GetString("JOBS_MAX_RETRY_DELAY"), time.Minute),
		TaskTimeLimit:          parseDuration(v.GetString("JOBS_TASK_TIME_LIMIT"), 30*time.Minute),
		SingleActivePerSession: v.GetBool("JOBS_SINGLE_ACTIVE_PER_SESSION"),
	}

	cfg.ProblemCache = ProblemCacheConfig{
		TTL:         parseDuration(v.GetString("PROBLEM_CACHE_TTL"), 5*time.Minute),
		RedisMirror: v.GetBool("PROBLEM_CACHE_REDIS_MIRROR"),
	}

	cfg.Progress = ProgressConfig{
		RedisFanout: v.GetBool("PROGRESS_REDIS_FANOUT"),
		Channel:     v.GetString("PROGRESS_CHANNEL"),
		BufferSize:  positiveOr(v.GetInt("PROGRESS_BUFFER_SIZE"), 16),
		Heartbeat:   parseDuration(v.GetString("PROGRESS_HEARTBEAT"), 15*time.Second),
	}

	cfg.Constraints = ConstraintsConfig{ProfilePath: v.GetString("CONSTRAINT_PROFILE_PATH")}
	cfg.Fixtures = FixturesConfig{Dir: v.GetString("FIXTURES_DIR")}
	cfg.Access = AccessConfig{
		ActorHeader: v.GetString("ACCESS_ACTOR_HEADER"),
		RoleHeader:  v.GetString("ACCESS_ROLE_HEADER"),
		EditorRoles: splitAndTrim(v.GetString("ACCESS_EDITOR_ROLES")),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "exam_timetabling")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "exam-timetabling")
	v.SetDefault("OTEL_SAMPLER_RATIO", 0.1)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	v.SetDefault("SOLVER_PHASE1_TIME_LIMIT", "2m")
	v.SetDefault("SOLVER_PHASE2_TIME_LIMIT", "1m")
	v.SetDefault("SOLVER_WORKERS", 1)
	v.SetDefault("SOLVER_PHASE2_PARALLELISM", 2)

	v.SetDefault("ENCODER_RULE_BUDGET", 50000)
	v.SetDefault("ENCODER_GLOBAL_BUDGET", 250000)
	v.SetDefault("ENCODER_MIN_GAP_SLOTS", 1)
	v.SetDefault("ENCODER_MAX_EXAMS_PER_STUDENT_DAY", 2)
	v.SetDefault("ENCODER_STUDENTS_PER_INVIGILATOR", 50)
	v.SetDefault("ENCODER_CAPACITY_BUFFER_PERCENT", 0)
	v.SetDefault("ENCODER_REQUIRE_INVIGILATORS", true)
	v.SetDefault("ENCODER_MAX_SPLIT_ROOMS", 3)
	v.SetDefault("ENCODER_DAILY_BALANCE_WEIGHT", 5)
	v.SetDefault("ENCODER_PREFERRED_SLOT_WEIGHT", 3)
	v.SetDefault("ENCODER_ROOM_WASTE_WEIGHT", 1)
	v.SetDefault("ENCODER_INVIGILATOR_BALANCE_WEIGHT", 2)

	v.SetDefault("GA_ENABLED", true)
	v.SetDefault("GA_POPULATION_SIZE", 30)
	v.SetDefault("GA_GENERATIONS", 50)
	v.SetDefault("GA_TOURNAMENT_SIZE", 3)
	v.SetDefault("GA_CROSSOVER_RATE", 0.8)
	v.SetDefault("GA_MUTATION_RATE", 0.2)
	v.SetDefault("GA_ELITISM_RATE", 0.1)
	v.SetDefault("GA_SEED", 42)

	v.SetDefault("JOBS_WORKERS", 1)
	v.SetDefault("JOBS_BUFFER_SIZE", 16)
	v.SetDefault("JOBS_MAX_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "2s")
	v.SetDefault("JOBS_MAX_RETRY_DELAY", "1m")
	v.SetDefault("JOBS_TASK_TIME_LIMIT", "30m")
	v.SetDefault("JOBS_SINGLE_ACTIVE_PER_SESSION", true)

	v.SetDefault("PROBLEM_CACHE_TTL", "5m")
	v.SetDefault("PROBLEM_CACHE_REDIS_MIRROR", false)

	v.SetDefault("PROGRESS_REDIS_FANOUT", false)
	v.SetDefault("PROGRESS_CHANNEL", "timetable:progress")
	v.SetDefault("PROGRESS_BUFFER_SIZE", 16)
	v.SetDefault("PROGRESS_HEARTBEAT", "15s")

	v.SetDefault("CONSTRAINT_PROFILE_PATH", "")
	v.SetDefault("FIXTURES_DIR", "./fixtures")

	v.SetDefault("ACCESS_ACTOR_HEADER", "X-Actor-ID")
	v.SetDefault("ACCESS_ROLE_HEADER", "X-Actor-Role")
	v.SetDefault("ACCESS_EDITOR_ROLES", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func clampRatio(value, fallback float64) float64 {
	if value <= 0 || value > 1 {
		return fallback
	}
	return value
}

// isMissingFile tolerates an absent .env when SetConfigFile is used, which
// viper reports as a filesystem error rather than ConfigFileNotFoundError.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
