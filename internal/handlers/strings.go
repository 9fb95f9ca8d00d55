package handlers

// All user-facing copy lives here so wording changes never touch flow
// logic.
const (
	msgWelcome = "Welcome to ShopMux! 🛍\n\n" +
		"Sell digital goods straight from chat. Use the buttons below to set up your shop."
	msgShopNotFound    = "That shop link doesn't point anywhere. Double-check the code."
	msgStoreDown       = "Something went wrong on our side. Please try again in a moment."
	msgNotAuthorized   = "This command isn't available to you."
	msgElevatedOnly    = "This feature needs a Pro subscription. Use /upgrade to unlock it."
	msgProductLimit    = "Free shops can list up to %d products. Upgrade with /upgrade to add more."
	msgAskProductName  = "What's the product called? (2–100 characters)"
	msgAskProductDesc  = "Add a short description, or send \"-\" to skip."
	msgAskProductPrice = "What's the price? Send a number like 9.99."
	msgAskProductCat   = "Which category? Send a name, or \"-\" for none."
	msgAskProductImage = "Send a product photo, or \"-\" to skip."
	msgAskProductUnits = "Now send the inventory: one unit per line (keys, codes, links…)."
	msgAskRefillUnits  = "Send the units to add, one per line."
	msgAskNewPrice     = "Send the new price, a number like 9.99."
	msgAskCategoryName = "Name the new category."
	msgBadPrice        = "That doesn't look like a price. Send a number like 9.99."
	msgBadName         = "Product names are 2–100 characters. Try again."
	msgProductSaved    = "Saved! %q is live with %d units in stock."
	msgUnitsAdded      = "Added %d units. %d now in stock."
	msgPriceUpdated    = "Price updated to %.2f."
	msgProductDeleted  = "Product removed."
	msgCategorySaved   = "Category %q created."
	msgCategoryDeleted = "Category removed. Its products are now uncategorized."
	msgNoProducts      = "No products yet."
	msgSoldOut         = "Sorry, this item just sold out."
	msgOrderClosed     = "This order was already handled."
	msgOrderPlaced     = "Order placed! The seller has been notified.\n\nPay with one of:\n%s"
	msgOrderNotify     = "New order %s\n%s wants %q for %.2f.\nConfirm once you've received payment."
	msgOrderDelivered  = "Payment confirmed! Here's your item:\n\n%s"
	msgOrderConfirmed  = "Order confirmed and delivered to the buyer."
	msgNoPayment       = "The seller hasn't set up payment methods yet."
	msgAskWallet       = "Send your %s address."
	msgAskPayPal       = "Send your PayPal email."
	msgBadWallet       = "That doesn't look like a valid %s address. Try again."
	msgBadEmail        = "That doesn't look like an email address. Try again."
	msgWalletSaved     = "%s updated."
	msgAskBotToken     = "Send the bot token from @BotFather.\n\nIt looks like 123456789:AA...xyz."
	msgBadTokenFormat  = "That doesn't look like a bot token. Copy it exactly from @BotFather."
	msgBadTokenLive    = "The platform rejected that token. Make sure you copied the right one."
	msgBotConnected    = "Your shop bot @%s is live! Customers can now buy there directly."
	msgMigrationOffer  = "You have %d products in your master-bot shop. Serve them from your new bot too?"
	msgMigrationDone   = "Done — your %d products are available on your shop bot."
	msgMigrationSkip   = "Okay, you can migrate later from /settings."
	msgShopLink        = "Your shop link:\n%s\n\nShare it anywhere — the QR works for print."
	msgUpgradePitch    = "ShopMux Pro unlocks your own bot, unlimited products, categories, photos and more payment methods.\n\nPick a plan:"
	msgUpgradeRequest  = "Got it! An operator will confirm your %d-month upgrade shortly."
	msgUpgradeNotify   = "Upgrade request: user %d (@%s) wants %d month(s)."
	msgGranted         = "Your Pro subscription is active until %s. 🎉"
	msgRevoked         = "Your Pro subscription has ended. Your shop bot has been paused."
	msgExpired         = "Your Pro subscription expired. Renew with /upgrade to bring your shop bot back."
)
