package main

import (
	"context"
	"io/ioutil"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheRockettek/Sandwich-Gateway/events"
	"github.com/TheRockettek/Sandwich-Gateway/gateway"
	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StartupData defines the variables that will be used for configs.
type StartupData struct {
	// Identity is used so consumers can handle many different producers
	// at once.
	Identity string `json:"identity"`
	Token    string `json:"token"`

	// If autosharded is true, shard_count and shard ids are ignored and
	// the recommended count is fetched at startup.
	IsAutosharded bool `json:"is_autosharded"`
	ShardCount    int  `json:"shard_count"`
	ShardFrom     int  `json:"shard_from"`
	ShardTo       int  `json:"shard_to"`

	Intents *int `json:"intents"`

	// Cache address should be for redis. When set, identify pacing is
	// shared with other producers using the same prefix.
	CacheAddress string `json:"cache_address"`
	CachePrefix  string `json:"cache_prefix"`

	// Stan address should be for a NATS streaming server. When empty,
	// events are consumed and dropped locally.
	StanAddress string `json:"stan_address"`
	StanCluster string `json:"stan_cluster"`
	StanChannel string `json:"stan_channel"`

	// ResumeFile persists session snapshots across restarts.
	ResumeFile string `json:"resume_file"`
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}).With().Timestamp().Logger()
	log.Logger = logger

	data := StartupData{}

	fileBytes, err := ioutil.ReadFile("data.json")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read data.json")
	}

	if err := json.Unmarshal(fileBytes, &data); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse data.json")
	}

	configuration := gateway.ClusterConfiguration{
		Token:    data.Token,
		Intents:  data.Intents,
		Compress: true,
	}

	if data.IsAutosharded || data.ShardCount < 1 {
		logger.Info().Msg("automatically retrieving shard count")
		configuration.Scheme = gateway.AutoScheme()
	} else {
		scheme, err := gateway.RangeScheme(data.ShardFrom, data.ShardTo, data.ShardCount)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid shard range")
		}
		configuration.Scheme = scheme
	}

	if data.CacheAddress != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: data.CacheAddress})
		configuration.Queue = gateway.NewRedisQueue(redisClient, data.CachePrefix+":identify", 0)
	}

	configuration.ResumeSessions = loadResumeSessions(logger, data.ResumeFile)

	cluster := gateway.NewCluster(configuration, logger)

	if data.StanAddress != "" {
		producer, err := gateway.NewProducer(data.StanAddress, data.StanCluster, data.Identity, data.StanChannel, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to streaming server")
		}
		defer producer.Close()

		producer.Attach(cluster.Emitter, events.EventTypeAll|events.EventTypeShardPayload)
	} else {
		drain := cluster.Emitter.Add(events.EventTypeAll, 0)
		go func() {
			for range drain.Events {
			}
		}()
	}

	if err := cluster.Open(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to open cluster")
	}

	logger.Info().Msg("sessions have now started. do ^C to close sessions")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Info().Msg("closing all sessions")

	sessions := cluster.DownResumable()
	saveResumeSessions(logger, data.ResumeFile, sessions)
}

func loadResumeSessions(logger zerolog.Logger, path string) map[int]gateway.ResumeSession {
	if path == "" {
		return nil
	}

	fileBytes, err := ioutil.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn().Err(err).Msg("failed to read resume file")
		}

		return nil
	}

	sessions := make(map[int]gateway.ResumeSession)
	if err := json.Unmarshal(fileBytes, &sessions); err != nil {
		logger.Warn().Err(err).Msg("failed to parse resume file")

		return nil
	}

	logger.Info().Int("sessions", len(sessions)).Msg("loaded resumable sessions")

	return sessions
}

func saveResumeSessions(logger zerolog.Logger, path string, sessions map[int]gateway.ResumeSession) {
	if path == "" || len(sessions) == 0 {
		return
	}

	fileBytes, err := json.Marshal(sessions)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to serialize resumable sessions")

		return
	}

	if err := ioutil.WriteFile(path, fileBytes, 0o600); err != nil {
		logger.Warn().Err(err).Msg("failed to write resume file")

		return
	}

	logger.Info().Int("sessions", len(sessions)).Msg("saved resumable sessions")
}
