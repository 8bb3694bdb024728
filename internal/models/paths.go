package models

import "strings"

// Collection names under a kid document
const (
	CollectionAccounts     = "accounts"
	CollectionKids         = "kids"
	CollectionRules        = "rules"
	CollectionChores       = "chores"
	CollectionRewards      = "rewards"
	CollectionPurchases    = "purchases"
	CollectionTransactions = "transactions"
)

// KidSubcollections lists every collection nested under a kid document
var KidSubcollections = []string{
	CollectionRules,
	CollectionChores,
	CollectionRewards,
	CollectionPurchases,
	CollectionTransactions,
}

// CollectionFor returns the definitions collection name for a kind
func CollectionFor(kind DefinitionKind) string {
	switch kind {
	case KindRule:
		return CollectionRules
	case KindChore:
		return CollectionChores
	case KindReward:
		return CollectionRewards
	}
	return ""
}

// join concatenates segments without cleaning them, so "." and ".." ids stay
// visible to the storage layer, which rejects them
func join(segments ...string) string {
	return strings.Join(segments, "/")
}

func AccountPath(accountID string) string {
	return join(CollectionAccounts, accountID)
}

func KidsCollection(accountID string) string {
	return join(AccountPath(accountID), CollectionKids)
}

func KidPath(accountID, kidID string) string {
	return join(KidsCollection(accountID), kidID)
}

// KidCollection returns the path of a collection nested under a kid
func KidCollection(accountID, kidID, collection string) string {
	return join(KidPath(accountID, kidID), collection)
}

func DefinitionPath(accountID, kidID string, kind DefinitionKind, id string) string {
	return join(KidCollection(accountID, kidID, CollectionFor(kind)), id)
}

func PurchasePath(accountID, kidID, id string) string {
	return join(KidCollection(accountID, kidID, CollectionPurchases), id)
}

func TransactionPath(accountID, kidID, id string) string {
	return join(KidCollection(accountID, kidID, CollectionTransactions), id)
}
