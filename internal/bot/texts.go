package bot

// User-facing texts are Uzbek, admin texts English. Texts passed through
// fmt carry HTML; %s arguments must already be escaped.
const (
	txtStartPreVerify = "Assalomu alaykum, %s!\n\n" +
		"Siz <b>\"%s\"</b> uchun keldingiz. Uni ochish uchun, iltimos, avval guruhga qo‘shiling va \"✅ A’zo bo‘ldim\" tugmasini bosing."
	txtStartNoOffer  = "Kechirasiz, siz foydalangan havola xato yoki muddati o'tgan. Iltimos, havolani olgan joyingizdan qayta tekshirib ko'ring."
	txtVerifyFail    = "Siz hali guruhga a’zo emassiz. Iltimos, qo‘shiling va yana tekshiring."
	txtVerified      = "Tabriklaymiz! Siz tanlagan material tayyor."
	txtLeftGroup     = "Ko‘rinishidan guruhga a’zolik bekor qilingan. Iltimos, qayta qo‘shiling."
	txtOfferGone     = "Kechirasiz, siz so‘ragan material endi mavjud emas."
	txtNeedStart     = "Iltimos, avval to‘g‘ri havola orqali /start bosing."
	txtFileMissing   = "Kechirasiz, bu fayl hozircha mavjud emas."
	txtSendFailed    = "Faylni yuborishda xatolik yuz berdi."
	txtTryLater      = "Xatolik yuz berdi. Iltimos, keyinroq urinib ko‘ring."
	txtTooFast       = "Iltimos, tugmani tez-tez bosmang."
	txtQueueBusy     = "Bot band. Iltimos, birozdan so‘ng urinib ko‘ring."
	txtUnknownCmd    = "Noma’lum buyruq. /start ni bosing."
	txtAdminOnly     = "Not allowed."
	btnJoinGroup     = "🔗 Guruhga qo‘shilish"
	btnVerifyJoin    = "✅ A’zo bo‘ldim"
	btnRejoined      = "✅ Qayta a'zo bo'ldim"
	btnOfferTemplate = "📄 %s"
)

const (
	txtAdminPanel = "Welcome to the Admin Panel.\n\n" +
		"<b>📊 At-a-Glance:</b>\n" +
		"• <b>Total Users:</b> %d\n" +
		"• <b>Verified Members:</b> %d (%s)\n\n" +
		"What would you like to do?"
	txtOffersTitle   = "Select an offer to manage:"
	txtOffersEmpty   = "No offers have been configured yet. Add your first one below."
	txtOfferNotFound = "Offer not found."
	txtOfferDeleted  = "Offer deleted."
	txtDeleteConfirm = "Are you sure you want to delete <code>%s</code>?"
	txtCancelled     = "Action cancelled."
	txtNothingToStop = "Nothing to cancel."

	txtAddKey          = "1/3: Enter the unique offer key (e.g. <code>ielts_speaking</code>). Use only lowercase letters, numbers and underscores."
	txtAddKeyInvalid   = "❌ Invalid format. Please use only lowercase letters (a-z), numbers (0-9) and underscores (_), 2-50 characters long."
	txtAddKeyTaken     = "❌ An offer with the key <code>%s</code> already exists."
	txtAddKeyTakenLate = "❌ That key was taken in the meantime. Please choose another one."
	txtAddLabel        = "2/3: Enter the button label that users will see (e.g. <code>IELTS Speaking Pack</code>)."
	txtAddLabelEmpty   = "The label cannot be empty. Please enter a label."
	txtAddAsset        = "3/3: Now, please send the document for this offer."
	txtNeedDocument    = "Please send a document (file), not a photo or text."
	txtAddDone         = "✅ Success! Offer <code>%s</code> has been created.\n\nLink: %s"
	txtNewAsset        = "Send the new document for <code>%s</code>."
	txtAssetChanged    = "✅ File for <code>%s</code> has been updated."
	txtNewLabel        = "Enter the new button label for <code>%s</code>."
	txtLabelChanged    = "✅ Label for <code>%s</code> has been updated."
	txtSessionGone     = "This action has expired. Please start again from /admin."

	txtBroadcastContent = "Send the message you want to broadcast to all users. It can be text, a photo, a video, or a document."
	txtBroadcastConfirm = "This is a preview of your broadcast message. Are you sure you want to send this to all users?"
	txtBroadcastStarted = "✅ Broadcast started for %d users. You will receive a summary message when it is complete."
	txtBroadcastNoUsers = "❌ There are no users to broadcast to."
	txtBroadcastBusy    = "⏳ A broadcast is already running. Use /cancel to stop it."
	txtBroadcastRunning = "⏳ A broadcast to %d users has been running for %s. Use /cancel to stop it."
	txtBroadcastStopped = "⏹ Stopping the running broadcast."
	txtBroadcastMissing = "Error: broadcast message not found."

	txtStatsHeader = "📊 Bot Statistics"
)

const (
	btnManageOffers = "✨ Manage Offers"
	btnBroadcast    = "📢 Broadcast"
	btnStats        = "📊 Statistics"
	btnAddOffer     = "➕ Add new offer"
	btnBackToPanel  = "⬅️ Back to Admin Panel"
	btnBackToList   = "⬅️ Back to list"
	btnChangeFile   = "🔄 Change file"
	btnRename       = "✏️ Change label"
	btnDeactivate   = "⏸ Deactivate"
	btnActivate     = "▶️ Activate"
	btnDeleteOffer  = "🗑️ Delete offer"
	btnYesDelete    = "✅ Yes, Delete"
	btnNoGoBack     = "❌ No, Go Back"
	btnSendNow      = "🚀 Broadcast message"
	btnCancel       = "❌ Cancel"
)

const (
	descStart  = "Start the bot and get your file"
	descAdmin  = "Open the admin control panel"
	descStats  = "View bot statistics"
	descCancel = "Cancel the current admin action"
)
