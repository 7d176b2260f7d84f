package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/leonelquinteros/gotext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"telegram-stock-alert/config"
	"telegram-stock-alert/internal/alert"
	"telegram-stock-alert/internal/chart"
	"telegram-stock-alert/internal/database"
	"telegram-stock-alert/internal/marketclock"
	"telegram-stock-alert/internal/marketdata"
	"telegram-stock-alert/internal/session"
	"telegram-stock-alert/internal/telegram"
)

type BotMetrics struct {
	CommandsProcessed prometheus.Counter
	MessagesHandled   prometheus.Counter
	UsersCount        prometheus.Gauge
	UsersSet          map[int64]struct{}
	Mutex             sync.Mutex
}

var (
	metrics = NewBotMetrics()
)

func init() {
	config.InitConfig()
	setupLogging()
}

func NewBotMetrics() *BotMetrics {
	metrics := &BotMetrics{
		CommandsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stockalert",
			Subsystem: "telegram_bot",
			Name:      "commands_processed",
			Help:      "The total number of processed commands",
		}),
		MessagesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stockalert",
			Subsystem: "telegram_bot",
			Name:      "messages_handled",
			Help:      "The total number of handled messages",
		}),
		UsersCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stockalert",
			Subsystem: "telegram_bot",
			Name:      "users_count",
			Help:      "The current number of unique users the bot has seen",
		}),
		UsersSet: make(map[int64]struct{}),
	}

	prometheus.MustRegister(metrics.CommandsProcessed)
	prometheus.MustRegister(metrics.MessagesHandled)
	prometheus.MustRegister(metrics.UsersCount)

	return metrics
}

func main() {
	gotext.Configure("locales", strings.ToLower(config.GetString("lang")), "default")

	if err := database.InitDB(config.GetString("db_path")); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	LoadMetricsFromDB()

	mirror := alert.NewMirror()
	reloadMirror(mirror)

	market := marketdata.NewClient()
	renderer := chart.NewRenderer(market)
	store := database.SQLStore{}
	sessions := session.NewManager(market, store, mirror)

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	}, sessions, mirror, renderer, market)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	clock, err := marketclock.New()
	if err != nil {
		log.Fatalf("Failed to load market calendar: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evaluator := alert.NewEvaluator(market, bot, store, mirror, renderer)
	interval := time.Duration(config.GetInt("check_interval")) * time.Second
	service := alert.NewService(evaluator, clock, interval)
	go service.Run(ctx)

	// Reheal store/mirror drift every weekday before the market opens.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("0 8 * * 1-5", func() { reloadMirror(mirror) }); err != nil {
		log.Fatalf("Failed to schedule mirror reload: %v", err)
	}
	scheduler.Start()

	updates, err := bot.GetUpdatesChannel()
	if err != nil {
		log.Fatalf("Failed to get updates channel: %v", err)
	}

	go handleUpdates(bot, updates)

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			SaveMetricsToDB()
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		cancel()
		SaveMetricsToDB()
		database.CloseDB()
		log.Println("Metrics saved, shutting down...")
		os.Exit(0)
	}()

	if err := launchMetricsAndHealthServer(config.GetInt("metrics_port")); err != nil {
		log.Fatalf("Failed to start metrics and health server: %v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting stock alert bot...")
}

func reloadMirror(mirror *alert.Mirror) {
	alerts, err := database.LoadAlerts()
	if err != nil {
		log.Errorf("Failed to load alerts from database: %v", err)
		return
	}
	mirror.ReplaceAll(alerts)
	log.Debugf("mirror hydrated with %d alerts", mirror.Count())
}

func handleUpdates(bot *telegram.Bot, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		if update.CallbackQuery != nil {
			handleSafely(func() { bot.HandleCallbackQuery(update.CallbackQuery) })
			continue
		}

		if update.Message == nil {
			log.Debug("Received non-message update")
			continue
		}

		metrics.MessagesHandled.Inc()
		trackUser(update.Message.Chat.ID)

		handleSafely(func() { handleMessage(bot, update) })
	}
}

func handleMessage(bot *telegram.Bot, update tgbotapi.Update) {
	text := bot.HandleUpdate(update)
	if text == "" {
		if update.Message.IsCommand() {
			metrics.CommandsProcessed.Inc()
		}
		return
	}

	err := bot.SendMessage(telegram.Message{
		ChatID:    int(update.Message.Chat.ID),
		Text:      text,
		MessageID: update.Message.MessageID,
	})

	if err != nil {
		log.Errorf("Failed to send message: %v", err)
	} else {
		metrics.CommandsProcessed.Inc()
	}
}

func handleSafely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()
	fn()
}

func trackUser(userID int64) {
	metrics.Mutex.Lock()
	defer metrics.Mutex.Unlock()

	if _, exists := metrics.UsersSet[userID]; !exists {
		metrics.UsersSet[userID] = struct{}{}
		metrics.UsersCount.Set(float64(len(metrics.UsersSet)))
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", healthCheckHandler)

	log.Infof("Launching metrics and health endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), http.DefaultServeMux)
}

func LoadMetricsFromDB() {
	metrics.Mutex.Lock()
	defer metrics.Mutex.Unlock()

	commandsProcessed, _ := database.GetMetric("commands_processed")
	messagesHandled, _ := database.GetMetric("messages_handled")

	metrics.CommandsProcessed.Add(commandsProcessed)
	metrics.MessagesHandled.Add(messagesHandled)

	users, _ := database.GetMetricsWithLabels("users")
	for userIDStr := range users["user_id"] {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			log.Printf("Failed to parse user id %s: %v", userIDStr, err)
			continue
		}
		metrics.UsersSet[userID] = struct{}{}
	}
	metrics.UsersCount.Set(float64(len(metrics.UsersSet)))

	created, _ := database.GetMetricsWithLabels("alerts_created")
	for kind, value := range created["kind"] {
		session.AlertsCreated.WithLabelValues(kind).Add(value)
	}

	log.Println("Metrics loaded from database.")
}

func SaveMetricsToDB() {
	metrics.Mutex.Lock()
	defer metrics.Mutex.Unlock()

	database.SaveMetric("commands_processed", "", "", GetMetricValue(metrics.CommandsProcessed))
	database.SaveMetric("messages_handled", "", "", GetMetricValue(metrics.MessagesHandled))

	for userID := range metrics.UsersSet {
		database.SaveMetric("users", "user_id", fmt.Sprintf("%d", userID), 1)
	}

	metricChan := make(chan prometheus.Metric, 8)
	go func() {
		session.AlertsCreated.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Printf("Failed to read alerts_created metric: %v", err)
			continue
		}
		var kind string
		for _, label := range metricProto.Label {
			if label.GetName() == "kind" {
				kind = label.GetValue()
			}
		}
		database.SaveMetric("alerts_created", "kind", kind, metricProto.Counter.GetValue())
	}

	log.Println("Metrics saved to database.")
}

func GetMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Printf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}
