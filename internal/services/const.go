package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrLedgerLock = errors.New("ledger locked")
var ErrQuizSessionLock = errors.New("quiz session locked")
var ErrCheckinLock = errors.New("checkin locked")
var ErrReferralLock = errors.New("referral locked")
var ErrWindowLock = errors.New("code window locked")
var ErrAdminOnly = errors.New("admin only")
var ErrInsufficientBalance = errors.New("insufficient balance")
var ErrUnderReview = errors.New("account under review")

const (
	CONFIG_SERVER_MODE            = "SERVER_MODE"
	CONFIG_CHECKIN_BASE_REWARD    = "CHECKIN_BASE_REWARD"
	CONFIG_QUIZ_REWARD_PER_ANSWER = "QUIZ_REWARD_PER_ANSWER"
	CONFIG_GENERAL_CODE_REWARD    = "GENERAL_CODE_REWARD"
	CONFIG_REFERRAL_SIGNUP_BONUS  = "REFERRAL_SIGNUP_BONUS"
	CONFIG_REFERRER_BONUS         = "REFERRER_BONUS"
	CONFIG_HISTORY_PAGE_LIMIT     = "HISTORY_PAGE_LIMIT"

	SERVER_MODE_DEVELOPMENT = "development"
	SERVER_MODE_STAGING     = "staging"
	SERVER_MODE_PRODUCTION  = "production"

	CHECKIN_BASE_REWARD_DEFAULT    = 10
	CHECKIN_STREAK_STEP            = 0.5
	CHECKIN_MAX_MULTIPLIER         = 5.0
	QUIZ_REWARD_PER_ANSWER_DEFAULT = 20
	QUIZ_PERFECT_BONUS_RATE        = 0.5
	QUIZ_MIN_ANSWER_SECONDS        = 2
	GENERAL_CODE_REWARD_DEFAULT    = 100
	HISTORY_PAGE_LIMIT_DEFAULT     = 50
	HISTORY_PAGE_LIMIT_MAX         = 100

	REFERRAL_SIGNUP_BONUS_DEFAULT = 50
	REFERRER_BONUS_DEFAULT        = 100
	REFERRER_BONUS_DELAY          = 24 * time.Hour
	REFERRAL_COMMISSION_RATE      = 0.10
	REFERRAL_COMMISSION_DELAY     = 24 * time.Hour
	REFERRAL_MIN_ACTIVITIES       = 2
	REFERRER_DAILY_LIMIT          = 10
	REFERRAL_IP_OVERLAP_WINDOW    = 30 * 24 * time.Hour

	MAX_WINDOWS_PER_TASK_PER_DAY = 4
	CODE_MIN_LOOKUP_LENGTH       = 6
	BRUTE_FORCE_THRESHOLD        = 8

	FRAUD_VELOCITY_WINDOW     = 10 * time.Minute
	FRAUD_VELOCITY_COUNT      = 5
	FRAUD_VELOCITY_PENALTY    = 0.5
	FRAUD_IP_CLUSTER_WINDOW   = 24 * time.Hour
	FRAUD_IP_CLUSTER_ACTORS   = 3
	FRAUD_IP_CLUSTER_PENALTY  = 0.25
	FRAUD_LOW_FLAGS_PENALTY   = 0.75
	FRAUD_MULTIPLIER_FLOOR    = 0.1
	SWEEP_BATCH_LIMIT         = 200

	CACHE_TTL_5_SECONDS  = 5 * time.Second
	CACHE_TTL_15_SECONDS = 15 * time.Second
	CACHE_TTL_1_MIN      = 1 * time.Minute
	CACHE_TTL_5_MINS     = 5 * time.Minute
	CACHE_TTL_15_MINS    = 15 * time.Minute
	CACHE_TTL_1_HOUR     = 1 * time.Hour
)

func LockKeyLedger(userID int64) string {
	return fmt.Sprintf("lock:ledger:%d", userID)
}

func LockKeyQuizSession(userID int64) string {
	return fmt.Sprintf("lock:quiz-session:%d", userID)
}

func LockKeyCheckin(userID int64) string {
	return fmt.Sprintf("lock:checkin:%d", userID)
}

func LockKeyReferral(userID int64) string {
	return fmt.Sprintf("lock:referral:%d", userID)
}

func LockKeyCodeWindow(windowID string) string {
	return fmt.Sprintf("lock:code-window:%s", windowID)
}

// db
func DBKeyUser(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

func DBKeyMe(userID int64) string {
	return fmt.Sprintf("me:%d", userID)
}

func DBKeyConfig(key string) string {
	return fmt.Sprintf("config:%s", strings.ToLower(key))
}

func DBKeyTask(taskID string) string {
	return fmt.Sprintf("task:%s", strings.ToLower(taskID))
}

func DBKeyActiveTasks() string {
	return "tasks:active"
}

func DBKeyQuestion(questionID int64) string {
	return fmt.Sprintf("question:%d", questionID)
}

func RateKeyAction(userID int64, action string) string {
	return fmt.Sprintf("rate:%s:%d", action, userID)
}

func RateKeyRedeemIP(ipHash string) string {
	return fmt.Sprintf("rate:redeem-ip:%s", ipHash)
}
