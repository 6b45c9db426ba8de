package cart

import "strings"

// Sentinel object names the classifier uses to signal that nothing
// usable was detected.
const (
	SentinelNoHand         = "no_hand_holding_object"
	SentinelUnidentifiable = "unidentifiable_item"
)

// IsSentinel reports whether the object name is one of the classifier's
// "nothing detected" sentinels.
func IsSentinel(objectName string) bool {
	return objectName == SentinelNoHand || objectName == SentinelUnidentifiable
}

var groceryCategories = []string{
	"food", "beverage", "snack", "snack food", "dairy", "produce", "meat",
	"bakery", "frozen", "pantry", "condiment", "spice", "cereal", "candy",
	"chocolate", "drink", "juice", "soda", "water", "coffee", "tea",
	"alcohol", "wine", "beer",
}

var nonGroceryCategories = []string{
	"sports equipment", "hardware", "electronics", "clothing", "accessory",
	"exercise equipment", "furniture", "toy", "book", "tool", "appliance",
	"beauty", "health", "cleaning", "automotive", "garden", "office",
	"pet", "baby", "home", "kitchen", "bathroom", "bedroom", "living room",
}

var groceryNameKeywords = []string{
	"can", "bottle", "box", "bag", "jar", "carton", "pack", "container",
	"drink", "food", "snack", "cereal", "milk", "juice", "soda", "beer",
	"wine", "coffee", "tea", "bread", "meat", "cheese", "yogurt", "candy",
	"chocolate", "cookie", "cracker", "chip", "nut", "fruit", "vegetable",
	"sauce", "spice", "oil", "vinegar", "sugar", "salt", "flour", "rice",
	"pasta", "soup", "frozen", "ice cream",
}

var bagKeywords = []string{"bag", "shopping bag", "tote", "container", "basket", "cart"}

// IsGrocery decides whether a classified object belongs in a grocery
// cart. An explicit non-grocery category match rejects, an explicit
// grocery category match accepts, otherwise the object name is checked
// against grocery keywords.
func IsGrocery(objectName, category string) bool {
	name := strings.ToLower(objectName)
	cat := strings.ToLower(category)

	for _, nonGrocery := range nonGroceryCategories {
		if strings.Contains(cat, nonGrocery) {
			return false
		}
	}

	for _, grocery := range groceryCategories {
		if strings.Contains(cat, grocery) {
			return true
		}
	}

	for _, keyword := range groceryNameKeywords {
		if strings.Contains(name, keyword) {
			return true
		}
	}

	return false
}

// IsBag reports whether the object is a bag or other carrying container.
// Bags are flagged but never added to the cart.
func IsBag(objectName, category string) bool {
	name := strings.ToLower(objectName)
	cat := strings.ToLower(category)

	for _, keyword := range bagKeywords {
		if strings.Contains(name, keyword) || strings.Contains(cat, keyword) {
			return true
		}
	}
	return false
}
