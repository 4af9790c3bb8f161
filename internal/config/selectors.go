package config

import "fmt"

// Selectors is the portal locator table. The portal frontend is a Vant
// mobile web app guarded by a tianai-captcha slider; these XPaths track
// its DOM and are the one place to touch when the portal changes.
type Selectors struct {
	// Login page
	UsernameInput string
	PasswordInput string
	LoginButton   string

	// App entry after login
	AppEntryImage string
	AppIcon       string
	IKnowButton   string

	// Reservation flow
	SeatSelectTab     string
	RoomList          string
	DatePicker        string
	CalendarGrid      string
	ConfirmDateButton string
	SeatMap           string
	SeatItem          string
	ConfirmButton     string

	// Slider captcha (tianai-captcha)
	SliderPopup   string
	SliderBgImg   string
	SliderButton  string
	SliderConfirm string

	// Result signals
	ErrorToast           string
	SeatUnavailableToast string
	SuccessMessage       string
}

// DefaultSelectors returns the locator table for the supported portal.
func DefaultSelectors() Selectors {
	return Selectors{
		UsernameInput: `//input[@placeholder='学工号']`,
		PasswordInput: `//input[@placeholder='密码']`,
		LoginButton:   `//div[@class='btn' and normalize-space(text())='登 录']`,

		AppEntryImage: `//img[@src='https://img.ruc.edu.cn/image/10/78da0b871d71402046f2d2055fcc2cb7.png']`,
		AppIcon:       `//div[contains(@class, 'icon-wrap')] | //div[contains(@class, 'tabbar-word-wrap')]`,
		IKnowButton:   `//span[contains(@class, 'pass') and contains(text(), '我知道了')]`,

		SeatSelectTab:     `//div[contains(@class, 'tabbar-word-wrap') and contains(normalize-space(text()), '预约选座')]`,
		RoomList:          `//div[contains(@class, 'room-name')]`,
		DatePicker:        `//div[@class='top-wrap']`,
		CalendarGrid:      `//div[@class='van-calendar__days']`,
		ConfirmDateButton: `//button[contains(@class, 'van-calendar__confirm')]`,
		SeatMap:           `//div[contains(@class, 'seat-item-wrap')] | //div[@class='word-wrap']`,
		SeatItem:          `//div[contains(@class, 'seat-item-wrap')]//div[contains(@class, 'word-wrap')]`,
		ConfirmButton:     `//div[contains(@data-v, '') and normalize-space(text())='确定']`,

		SliderPopup:   `//div[@id='tianai-captcha-parent']`,
		SliderBgImg:   `//img[@id='tianai-captcha-slider-bg-img']`,
		SliderButton:  `//div[@id='tianai-captcha-slider-move-btn']`,
		SliderConfirm: `//div[text()='确定']`,

		ErrorToast:           `//div[contains(@class, 'van-toast--text')]`,
		SeatUnavailableToast: `//div[contains(@class, 'van-toast--text') and contains(text(), '该座位不可预约')]`,
		SuccessMessage:       `//*[contains(text(), '预约成功')] | //*[contains(text(), '提交成功')]`,
	}
}

// RoomXPath builds the locator for a room entry by display name.
func (s Selectors) RoomXPath(room string) string {
	return fmt.Sprintf(`//div[contains(@class, 'room-name') and contains(text(), '%s')]`, room)
}

// SeatXPath builds the locator for a seat cell by seat number.
func (s Selectors) SeatXPath(seat int) string {
	return fmt.Sprintf(`//div[contains(@class, 'seat-item-wrap')]//div[contains(@class, 'word-wrap') and normalize-space(text())='%d']`, seat)
}
