package speech

import "fmt"

const msgEmpty = "Nothing to say, there is."

func spokenMessage(model, url string) string {
	return fmt.Sprintf("Spoken with %s, the words have been.\nAudio URL, you seek: %s", model, url)
}

func unplayedMessage(url string) string {
	return fmt.Sprintf("Audio URL, you seek: %s\nBut play the sound, I could not. Download and play manually, you must.", url)
}

func failedMessage(reason string) string {
	return "Failed, all voice models have. Last error: " + reason
}
