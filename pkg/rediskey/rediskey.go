package rediskey

import "fmt"

// Counter keys (global convention across services)
const (
	VipCodeViewsPrefix        = "vipcode:views"
	VipCodeCreatorViewsPrefix = "vipcode:creator:views"
	FlashSaleViewsPrefix      = "flashsale:views"
	FlashSaleConversionPrefix = "flashsale:conversions"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildVipCodeViewsKey returns "vipcode:views:{codeID}"
func BuildVipCodeViewsKey(codeID string) string {
	return NamespaceKey(VipCodeViewsPrefix, codeID)
}

// BuildVipCodeCreatorViewsKey returns "vipcode:creator:views:{creatorID}"
func BuildVipCodeCreatorViewsKey(creatorID string) string {
	return NamespaceKey(VipCodeCreatorViewsPrefix, creatorID)
}

// BuildFlashSaleViewsKey returns "flashsale:views:{saleID}"
func BuildFlashSaleViewsKey(saleID string) string {
	return NamespaceKey(FlashSaleViewsPrefix, saleID)
}

// BuildFlashSaleConversionsKey returns "flashsale:conversions:{saleID}"
func BuildFlashSaleConversionsKey(saleID string) string {
	return NamespaceKey(FlashSaleConversionPrefix, saleID)
}
