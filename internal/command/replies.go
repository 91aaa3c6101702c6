package command

// User-facing replies. Commands are used by Indonesian-speaking groups.
const (
	replyGenerationFailed = "Maaf, terjadi kesalahan saat menghubungi 'otak' saya."
	replyHistoryFailed    = "Maaf, saya gagal membaca riwayat chat."
	replyVotingHistory    = "Maaf, saya gagal menganalisis voting dari riwayat chat."
	replyInternalError    = "Maaf, terjadi kesalahan saat memproses perintah."
	replyNotArchived      = "\n\n_(catatan: hasil ini gagal diarsipkan)_"
	replyDegraded         = "\n\n_(catatan: sebagian percakapan gagal diproses, hasil mungkin tidak lengkap)_"
	replyPollDegraded     = "_(catatan: sebagian percakapan gagal diproses, poll mungkin tidak mewakili seluruh diskusi)_"

	usageSummarize    = "Format salah. Coba `!rangkum 50` (maks 100)."
	usageTasks        = "Format salah. Coba `!tugas 50` (maks 100)."
	usageVoting       = "Format salah. Coba `!voting 20` (maks 50)."
	usageDebugHistory = "Format salah. Coba `!debug_history 10` (maks 50)."
	usageAsk          = "Format salah. Coba `!tanya <pertanyaan>`."
	usageRegister     = "Format salah. Coba `!register Nama Kamu`."
	usageStartFromRef = "Balas (quote) pesan yang menjadi awal rapat dengan `!mulaiDariSini`."

	ackSummarize        = "Siap! Saya akan baca %d pesan terakhir... 📜"
	ackSummarizeMeeting = "Siap! Saya akan merangkum rapat sejak %s... 📜"
	ackTasks            = "Siap! Saya cari tugas dari %d pesan terakhir... 📋"
	ackTasksMeeting     = "Siap! Saya cari tugas dari rapat sejak %s... 📋"
	ackVoting           = "Oke! Saya analisis %d pesan terakhir untuk dibuat *voting*... 🔍"
	ackVotingMeeting    = "Oke! Saya analisis rapat sejak %s untuk dibuat *voting*... 🔍"
	ackAsk              = "Otak saya sedang berpikir... 🧠 Mohon tunggu sebentar."
	ackTestPoll         = "Siap, mengirim poll tes..."

	replyNothingToSummarize = "Tidak ada pesan untuk dirangkum (selain perintahmu)."
	replyNothingInMeeting   = "Tidak ada pesan sejak rapat dimulai. Penanda rapat dihapus."
	replyNoTasks            = "Tidak ada tugas yang ditemukan dalam percakapan."
	replyNotEnoughToVote    = "Tidak ada diskusi yang cukup untuk dibuat voting."
	replyPollFailed         = "Otak saya bingung... Saya tidak bisa mengubah diskusi itu menjadi poll."
	replyEmptySummary       = "Saya tidak menemukan hal yang bisa dirangkum."

	headerMeetingSummary = "📝 *Notulen rapat* (sejak %s)\n\n"
	headerTasks          = "📋 *Daftar tugas*\n\n"

	replyMeetingStarted    = "🟢 Rapat dimulai sejak %s. Ketik `!rangkum` untuk membuat notulen atau `!batalRapat` untuk membatalkan."
	replyMeetingRunning    = "⚠️ Rapat sudah berjalan sejak %s. Ketik `!batalRapat` dulu jika ingin memulai ulang."
	replyMeetingOverwrite  = "⚠️ Penanda rapat sebelumnya (sejak %s) diganti.\n"
	replyMeetingCancelled  = "🔴 Rapat dibatalkan. Penanda awal rapat dihapus."
	replyNoMeeting         = "Tidak ada rapat yang sedang berjalan."
	replyQuotedNotFound    = "Maaf, pesan yang di-quote tidak ditemukan di riwayat saya."
	replyRegistered        = "Siap, %s! Nama kamu sudah terdaftar."
	replyRegisterFailed    = "Maaf, gagal menyimpan nama kamu. Coba lagi nanti."
	replyDebugHistoryTitle = "--- %d pesan terakhir ---\n"
	replyTestPollFailed    = "Gagal mengirim poll tes."

	testPollQuestion = "Ini Judul Tes Poll"
)

var testPollOptions = []string{"Opsi A", "Opsi B", "Opsi C"}

const helpText = `🤖 *Notulis* siap membantu!

*Rapat*
• !mulaiRapat : tandai awal rapat sekarang
• !mulaiDariSini : balas (quote) pesan pertama rapat
• !batalRapat : hapus penanda rapat

*Ringkasan*
• !rangkum [n] : rangkum rapat, atau n pesan terakhir (maks 100)
• !tugas [n] : daftar tugas dari rapat, atau n pesan terakhir (maks 100)
• !voting [n] : buat poll dari diskusi, atau n pesan terakhir (maks 50)

*Lainnya*
• !tanya <pertanyaan> : tanya apa saja
• !register <nama> : daftarkan nama tampilanmu
• !help : tampilkan bantuan ini

Saat rapat berjalan, angka n diabaikan.`
