package filtergraph

import "fmt"

// minWindow is the narrowest window that survives three-decimal rendering.
// Anything shorter is treated as a step.
const minWindow = 0.0005

// FadeAlpha returns an opacity expression over t: 0 before fadeInStart, a
// linear ramp to 1 until fadeInEnd, 1 until fadeOutStart, a linear ramp to 0
// until fadeOutEnd and 0 afterwards. Zero-length ramps become steps.
func FadeAlpha(fadeInStart, fadeInEnd, fadeOutStart, fadeOutEnd float64) string {
	if fadeInEnd < fadeInStart {
		fadeInEnd = fadeInStart
	}
	if fadeOutStart < fadeInEnd {
		fadeOutStart = fadeInEnd
	}
	if fadeOutEnd < fadeOutStart {
		fadeOutEnd = fadeOutStart
	}

	tail := "0"
	if w := fadeOutEnd - fadeOutStart; w >= minWindow {
		tail = fmt.Sprintf("if(lt(t,%s),(%s-t)/%s,0)", Num(fadeOutEnd), Num(fadeOutEnd), Num(w))
	}
	body := fmt.Sprintf("if(lt(t,%s),1,%s)", Num(fadeOutStart), tail)

	if w := fadeInEnd - fadeInStart; w >= minWindow {
		body = fmt.Sprintf("if(lt(t,%s),(t-%s)/%s,%s)", Num(fadeInEnd), Num(fadeInStart), Num(w), body)
	}

	return fmt.Sprintf("if(lt(t,%s),0,%s)", Num(fadeInStart), body)
}

// SlidePosition interpolates from finalValue+startOffset to finalValue over
// [animStart, animEnd], holding the end values outside the window.
func SlidePosition(finalValue, startOffset, animStart, animEnd float64) string {
	from := finalValue + startOffset
	w := animEnd - animStart
	if w < minWindow {
		return fmt.Sprintf("if(lt(t,%s),%s,%s)", Num(animStart), Num(from), Num(finalValue))
	}
	return fmt.Sprintf("if(lt(t,%s),%s,if(lt(t,%s),%s+(%s)*(t-%s)/%s,%s))",
		Num(animStart), Num(from),
		Num(animEnd), Num(from), Num(-startOffset), Num(animStart), Num(w),
		Num(finalValue),
	)
}

// Pulse oscillates between low and high with |sin| inside
// [phaseStart, phaseEnd] and is 0 elsewhere. One pulse lasts period seconds.
func Pulse(period, phaseStart, phaseEnd, low, high float64) string {
	if period < minWindow {
		period = phaseEnd - phaseStart
	}
	if period < minWindow {
		period = 1
	}
	return fmt.Sprintf("if(between(t,%s,%s),%s+%s*abs(sin(PI*(t-%s)/%s)),0)",
		Num(phaseStart), Num(phaseEnd),
		Num(low), Num(high-low),
		Num(phaseStart), Num(period),
	)
}

// PulsePeriod splits total into count pulses. count is at least 1.
func PulsePeriod(total float64, count int) float64 {
	if count < 1 {
		count = 1
	}
	return total / float64(count)
}

// Between is the enable expression for [start, end].
func Between(start, end float64) string {
	return fmt.Sprintf("between(t,%s,%s)", Num(start), Num(end))
}
