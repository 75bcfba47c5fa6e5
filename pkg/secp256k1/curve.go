// Package secp256k1 implements affine group arithmetic for the secp256k1
// curve (y^2 = x^3 + 7 over GF(P)) on top of math/big. It is the small,
// self-contained base the signing and key-exchange packages build on.
package secp256k1

import "math/big"

var (
	// P is the prime of the base field.
	P = mustHexInt("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFC2F")
	// N is the order of the group generated by G.
	N = mustHexInt("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")
	// G is the generator point.
	G = &Point{
		X: mustHexInt("79BE667EF9DCBBAC55A06295CE870B07029BFCDB2DCE28D959F2815B16F81798"),
		Y: mustHexInt("483ADA7726A3C4655DA4FBFC0E1108A8FD17B448A68554199C47D08FFB10D4B8"),
	}

	three = big.NewInt(3)
	seven = big.NewInt(7)

	// sqrtExp is (P+1)/4, the exponent that computes square roots in the
	// field. P = 3 mod 4 makes that work.
	sqrtExp *big.Int
)

func init() {
	sqrtExp = new(big.Int).Add(P, big.NewInt(1))
	sqrtExp.Rsh(sqrtExp, 2)
}

func mustHexInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("secp256k1: bad curve constant " + s)
	}
	return v
}

// Point is an affine curve point. A nil *Point is the point at infinity.
type Point struct {
	X, Y *big.Int
}

// IsInfinity reports whether p is the point at infinity.
func (p *Point) IsInfinity() bool {
	return p == nil
}

// Equal reports whether p and q are the same point.
func (p *Point) Equal(q *Point) bool {
	if p == nil || q == nil {
		return p == nil && q == nil
	}
	return p.X.Cmp(q.X) == 0 && p.Y.Cmp(q.Y) == 0
}

// HasEvenY reports whether p has an even y coordinate. Infinity is never
// even.
func HasEvenY(p *Point) bool {
	return p != nil && p.Y.Bit(0) == 0
}

// XBytes returns the 32 byte big endian x coordinate of p.
func XBytes(p *Point) []byte {
	return p.X.FillBytes(make([]byte, 32))
}

// IsOnCurve reports whether p satisfies the curve equation. Infinity
// counts as on the curve.
func IsOnCurve(p *Point) bool {
	if p == nil {
		return true
	}
	// y^2 = x^3 + 7
	lhs := new(big.Int).Mul(p.Y, p.Y)
	lhs.Mod(lhs, P)
	rhs := new(big.Int).Exp(p.X, three, P)
	rhs.Add(rhs, seven)
	rhs.Mod(rhs, P)
	return lhs.Cmp(rhs) == 0
}

// Add returns p1 + p2 by the affine chord and tangent rules. Inputs are
// never modified.
func Add(p1, p2 *Point) *Point {
	if p1 == nil {
		return p2
	}
	if p2 == nil {
		return p1
	}
	if p1.X.Cmp(p2.X) == 0 && p1.Y.Cmp(p2.Y) != 0 {
		return nil
	}

	lam := new(big.Int)
	if p1.X.Cmp(p2.X) == 0 {
		// lam = 3*x1^2 / (2*y1)
		den := new(big.Int).Lsh(p1.Y, 1)
		inv := new(big.Int).ModInverse(den, P)
		if inv == nil {
			return nil
		}
		lam.Mul(p1.X, p1.X)
		lam.Mul(lam, three)
		lam.Mul(lam, inv)
	} else {
		// lam = (y2-y1) / (x2-x1)
		den := new(big.Int).Sub(p2.X, p1.X)
		den.Mod(den, P)
		inv := new(big.Int).ModInverse(den, P)
		if inv == nil {
			return nil
		}
		lam.Sub(p2.Y, p1.Y)
		lam.Mul(lam, inv)
	}
	lam.Mod(lam, P)

	// x3 = lam^2 - x1 - x2
	x3 := new(big.Int).Mul(lam, lam)
	x3.Sub(x3, p1.X)
	x3.Sub(x3, p2.X)
	x3.Mod(x3, P)

	// y3 = lam*(x1-x3) - y1
	y3 := new(big.Int).Sub(p1.X, x3)
	y3.Mul(y3, lam)
	y3.Sub(y3, p1.Y)
	y3.Mod(y3, P)

	return &Point{X: x3, Y: y3}
}

// ScalarMul returns k*p by double and add over the low 256 bits of k.
// Branching on key bits means this is not constant time.
func ScalarMul(p *Point, k *big.Int) *Point {
	var r *Point
	q := p
	for i := 0; i < 256; i++ {
		if k.Bit(i) == 1 {
			r = Add(r, q)
		}
		q = Add(q, q)
	}
	return r
}

// LiftX returns the curve point with the given x coordinate and even y,
// or nil when no such point exists.
func LiftX(x *big.Int) *Point {
	if x.Sign() < 0 || x.Cmp(P) >= 0 {
		return nil
	}
	// y^2 = x^3 + 7
	ySq := new(big.Int).Exp(x, three, P)
	ySq.Add(ySq, seven)
	ySq.Mod(ySq, P)

	y := new(big.Int).Exp(ySq, sqrtExp, P)
	check := new(big.Int).Mul(y, y)
	check.Mod(check, P)
	if check.Cmp(ySq) != 0 {
		return nil
	}
	if y.Bit(0) == 1 {
		y.Sub(P, y)
	}
	return &Point{X: new(big.Int).Set(x), Y: y}
}
