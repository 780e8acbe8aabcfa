package copier

var VerifyDestination = verifyDestination
