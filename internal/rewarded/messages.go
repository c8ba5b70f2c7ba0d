package rewarded

import (
	"github.com/arrowpuzzle/rewardflow/internal/intentstore"
	"github.com/arrowpuzzle/rewardflow/internal/ledger"
)

// MessageFor maps a flow outcome to the one user-facing line shown for it.
// Pure; every outcome maps to exactly one message.
func MessageFor(placement ledger.Placement, out Outcome) string {
	switch out.Kind {
	case OutcomeGranted:
		return grantedMessage(placement)
	case OutcomeRejected:
		if msg, ok := failureMessages[out.FailureCode]; ok {
			return msg
		}
		return "Reward not available right now."
	case OutcomeTimeout:
		return "Still checking your reward, we'll confirm it automatically."
	case OutcomeNotCompleted:
		return "Watch the whole ad to get the reward."
	case OutcomeProviderError:
		return "The ad didn't load. Your reward will arrive automatically if it was counted."
	case OutcomeUnavailable:
		return "Ads aren't available right now."
	default:
		return "Network error. Please try again."
	}
}

func grantedMessage(placement ledger.Placement) string {
	switch placement {
	case ledger.PlacementDailyCoins:
		return "Coins added to your balance!"
	case ledger.PlacementHint:
		return "Hint added!"
	case ledger.PlacementRevive:
		return "Revive unlocked, keep going!"
	default:
		return "Reward granted!"
	}
}

var failureMessages = map[string]string{
	ledger.FailureDailyLimitReached:    "Daily ad limit reached. Come back tomorrow!",
	ledger.FailureHintBalanceNotZero:   "You already have a hint.",
	ledger.FailureReviveAlreadyUsed:    "You already used a revive on this level.",
	ledger.FailureAdsLocked:            "Rewarded ads unlock at level 21.",
	ledger.FailureIntentExpired:        "That attempt expired. Try again.",
	ledger.FailureIntentAlreadyPending: "A reward is already being processed.",
	ledger.FailureAdNotCompleted:       "Watch the whole ad to get the reward.",
}

// ToastFor maps a terminal status observed by the reconciler to the toast it
// should enqueue.
func ToastFor(st ledger.IntentStatus) (string, intentstore.Tone) {
	if st.Status == ledger.StatusGranted {
		return grantedMessage(st.Placement), intentstore.ToneSuccess
	}
	if msg, ok := failureMessages[st.FailureCode]; ok {
		tone := intentstore.ToneInfo
		if st.Status == ledger.StatusRejected {
			tone = intentstore.ToneError
		}
		return msg, tone
	}
	if st.Status == ledger.StatusExpired {
		return "That reward attempt expired. Try again.", intentstore.ToneInfo
	}
	return "Reward not available right now.", intentstore.ToneError
}
